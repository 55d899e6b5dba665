package main

import (
	"context"
	"log"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/inkbook/session-core/internal/api/http"
	"github.com/inkbook/session-core/internal/api/http/handlers"
	"github.com/inkbook/session-core/internal/config"
	"github.com/inkbook/session-core/internal/events"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/internal/persistence"
	"github.com/inkbook/session-core/internal/remote"
	"github.com/inkbook/session-core/internal/session"
	"github.com/inkbook/session-core/internal/tokenstore"
	"github.com/inkbook/session-core/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	deps := map[string]handlers.Pinger{}
	var durable tokenstore.Backend
	switch cfg.Session.StoreBackend {
	case config.BackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		durable = tokenstore.NewPostgresBackend(pg.Pool, cfg.Session.TokenKey)
		deps["postgres"] = pg
	case config.BackendRedis:
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		durable = tokenstore.NewRedisBackend(rdb.Client, cfg.Session.TokenKey)
		deps["redis"] = rdb
	default:
		durable = tokenstore.NewMemoryBackend()
	}

	backends := []tokenstore.Backend{durable}
	if cfg.Session.CookieEnabled {
		origin, err := url.Parse(cfg.Session.CookieURL)
		if err != nil {
			logger.Fatal("invalid cookie url", zap.Error(err))
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			logger.Fatal("failed to create cookie jar", zap.Error(err))
		}
		backends = append(backends, tokenstore.NewCookieBackend(jar, origin, tokenstore.CookieOptions{
			Name:   cfg.Session.CookieName,
			TTL:    cfg.Session.CookieTTL(),
			Secure: cfg.Session.CookieSecure,
		}))
	}
	store := tokenstore.NewStore(logger.Named("tokenstore"), backends...)

	client := remote.NewClient(cfg.AuthAPI.BaseURL, cfg.AuthAPI.Timeout(), logger.Named("remote"), metrics)
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(dispatcher, logger)

	state := session.NewStateStore()
	ctrl := session.NewController(client, store, state, logger.Named("session"), session.Options{
		ValidateOnHydrate: cfg.Session.ValidateOnHydrate,
		Metrics:           metrics,
		Events:            dispatcher,
	})

	monitor := session.NewTokenMonitor(ctrl, store, client, cfg.Session.MonitorInterval(), logger.Named("token_monitor"), metrics)
	validator := session.NewPeriodicValidator(ctrl, client, cfg.Session.ValidationInterval(), logger.Named("validator"))
	watchdog := session.NewWatchdog(state, logger.Named("watchdog"), monitor, validator)
	defer watchdog.Close()

	if err := ctrl.Hydrate(ctx); err != nil {
		logger.Warn("session not restored", zap.Error(err))
	} else if st := ctrl.State(); st.Authenticated {
		logger.Info("session restored", zap.String("user_id", st.Profile.UserID))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.AuthAPI.Timeout()*3)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Session:  handlers.NewSessionHandler(ctrl),
		Gatherer: reg,
	})

	go func() {
		logger.Info("control server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	watchdog.Close()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("control server shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
