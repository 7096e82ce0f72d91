package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/property-service/internal/api/http"
	"github.com/spec-kit/property-service/internal/api/http/handlers"
	"github.com/spec-kit/property-service/internal/auth"
	"github.com/spec-kit/property-service/internal/config"
	"github.com/spec-kit/property-service/internal/events"
	"github.com/spec-kit/property-service/internal/observability"
	"github.com/spec-kit/property-service/internal/persistence"
	"github.com/spec-kit/property-service/internal/repository"
	"github.com/spec-kit/property-service/internal/service"
	"github.com/spec-kit/property-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, "requests", cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	reaperPG, err := persistence.NewPostgres(ctx, "reaper", persistence.ReaperPostgresConfig(cfg.Postgres, cfg.Reaper), logger)
	if err != nil {
		logger.Fatal("failed to connect reaper postgres", zap.Error(err))
	}
	defer reaperPG.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	if pool := pg.PoolHandle(); pool != nil {
		names, err := repository.NewRoleRepository(pool).ListNames(ctx)
		if err != nil {
			logger.Fatal("failed to load role catalog", zap.Error(err))
		}
		missing, err := auth.CheckRoleCatalog(names)
		if err != nil {
			logger.Fatal("role catalog mismatch", zap.Error(err))
		}
		for _, role := range missing {
			logger.Warn("role not present in roles table", zap.String("role", string(role)))
		}
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger).RegisterHandlers()

	policy, err := auth.ParseStoreFailurePolicy(cfg.Auth.StoreFailurePolicy)
	if err != nil {
		logger.Fatal("invalid store failure policy", zap.Error(err))
	}

	sessions := repository.NewSessionRepository(pg.PoolHandle())
	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:    cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		Scheme:    cfg.Auth.Scheme,
		ClockSkew: cfg.Auth.ClockSkew,
		TTL:       cfg.Auth.AccessTokenTTL(),
	})
	validator, err := auth.NewSessionValidator(sessions, auth.ValidatorConfig{
		Policy:  policy,
		Timeout: cfg.Auth.StoreTimeout,
	}, logger, dispatcher)
	if err != nil {
		logger.Fatal("failed to build session validator", zap.Error(err))
	}
	gate := auth.NewGate(auth.GateDependencies{
		Tokens:                 tokens,
		Sessions:               validator,
		Logger:                 logger,
		Recorder:               metrics,
		ReducedAssuranceRoutes: cfg.Auth.ReducedAssuranceRoutes,
	})
	logger.Info("auth gate configured",
		zap.String("store_failure_policy", policy.String()),
		zap.Strings("reduced_assurance_routes", cfg.Auth.ReducedAssuranceRoutes))

	var locker worker.Locker
	if redis.Enabled() {
		locker = redis
	}
	reaper, err := worker.NewSessionReaper(worker.ReaperDependencies{
		Store:    repository.NewSessionRepository(reaperPG.PoolHandle()),
		Locker:   locker,
		Recorder: metrics,
		Events:   dispatcher,
		Logger:   logger,
	}, worker.ReaperConfig{
		Interval:  cfg.Reaper.Interval,
		Retention: cfg.Reaper.Retention,
		Timeout:   cfg.Reaper.Timeout,
		LockTTL:   cfg.Reaper.LockTTL,
	})
	if err != nil {
		logger.Fatal("failed to build session reaper", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics, !cfg.App.IsProduction()),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	err = httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Gate: gate,
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
			handlers.Dependency{Name: "postgres", Pinger: pg},
			handlers.Dependency{Name: "postgres_reaper", Pinger: reaperPG},
			handlers.Dependency{Name: "redis", Pinger: redis, Optional: true},
		),
		Sessions: handlers.NewSessionHandler(service.NewSessionService(sessions, dispatcher, cfg.Auth.StoreTimeout)),
		Admin:    handlers.NewAdminHandler(reaper),
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatal("invalid route declaration", zap.Error(err))
	}

	if cfg.Reaper.Enabled && reaperPG.PoolHandle() != nil {
		reaper.Start(ctx)
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	reaper.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
