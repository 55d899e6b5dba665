package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/domain"
)

// Starter is a background check that can be started and stopped.
type Starter interface {
	Start() StopFunc
}

// Watchdog runs the background checks exactly while the session is
// authenticated and tears them down as soon as it is not.
type Watchdog struct {
	mu          sync.Mutex
	checks      []Starter
	stops       []StopFunc
	closed      bool
	unsubscribe func()
	logger      *zap.Logger
}

// NewWatchdog subscribes to state and reacts to the current state immediately.
func NewWatchdog(state *StateStore, logger *zap.Logger, checks ...Starter) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watchdog{checks: checks, logger: logger}
	w.unsubscribe = state.Subscribe(w.onState)
	w.onState(state.Get())
	return w
}

func (w *Watchdog) onState(s domain.SessionState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	running := len(w.stops) > 0
	switch {
	case s.Authenticated && !s.Loading && !running:
		for _, check := range w.checks {
			w.stops = append(w.stops, check.Start())
		}
		w.logger.Debug("session checks started", zap.Int("count", len(w.stops)))
	case !s.Authenticated && running:
		w.stopLocked()
		w.logger.Debug("session checks stopped")
	}
}

// Running reports whether the background checks are active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stops) > 0
}

// Close stops every check and detaches from the state store.
func (w *Watchdog) Close() {
	w.mu.Lock()
	w.closed = true
	w.stopLocked()
	w.mu.Unlock()

	if w.unsubscribe != nil {
		w.unsubscribe()
	}
}

func (w *Watchdog) stopLocked() {
	for _, stop := range w.stops {
		stop()
	}
	w.stops = nil
}
