package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StopFunc halts a running background check. Calling it more than once is safe.
type StopFunc func()

// poller runs check on a fixed cadence. A tick is skipped while the previous
// one is still running, and the context passed to check is cancelled on stop.
type poller struct {
	name     string
	interval time.Duration
	check    func(ctx context.Context)
	logger   *zap.Logger
}

func (p poller) start() StopFunc {
	ctx, cancel := context.WithCancel(context.Background())
	log := cronLogger{sugar: p.logger.With(zap.String("poller", p.name)).Sugar()}

	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	c.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		p.check(ctx)
	}))
	c.Start()
	p.logger.Debug("poller started", zap.String("poller", p.name), zap.Duration("interval", p.interval))

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			c.Stop()
			p.logger.Debug("poller stopped", zap.String("poller", p.name))
		})
	}
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
