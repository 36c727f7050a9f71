package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/housing-service/internal/api/http"
	"github.com/spec-kit/housing-service/internal/api/http/handlers"
	"github.com/spec-kit/housing-service/internal/auth"
	"github.com/spec-kit/housing-service/internal/cache"
	"github.com/spec-kit/housing-service/internal/config"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/lock"
	"github.com/spec-kit/housing-service/internal/observability"
	"github.com/spec-kit/housing-service/internal/persistence"
	"github.com/spec-kit/housing-service/internal/reconciler"
	"github.com/spec-kit/housing-service/internal/repository"
	"github.com/spec-kit/housing-service/internal/service"
	"github.com/spec-kit/housing-service/internal/worker"
)

// repositories is the storage backend the services run against.
type repositories struct {
	registrants repository.RegistrantRepository
	rooms       repository.RoomRepository
	ledger      repository.AllocationRepository
	settings    repository.SettingsRepository
}

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	repos, err := buildRepositories(ctx, cfg, pg, logger)
	if err != nil {
		logger.Fatal("failed to prepare storage", zap.Error(err))
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var appCache cache.Cache = cache.NewMemory().WithObserver(metrics)
	if redis.Enabled() {
		appCache = cache.NewFallback(cache.NewRedis(redis.Client, cfg.Redis.KeyPrefix), cache.NewMemory(), logger, cache.FallbackOptions{
			FailureThreshold: cfg.Cache.BreakerThreshold,
			Cooldown:         cfg.Cache.BreakerCooldown(),
			Observer:         metrics,
		})
	}

	dispatcher := events.NewInMemoryDispatcher()
	locks := lock.NewKeyed()

	settingsService := service.NewSettingsService(service.SettingsDependencies{
		Repo:          repos.settings,
		Cache:         appCache,
		TTL:           cfg.Cache.SettingsTTL(),
		Dispatcher:    dispatcher,
		Logger:        logger,
		AgeGapDefault: cfg.Allocation.AgeGapDefault,
	})
	roomService := service.NewRoomService(service.RoomDependencies{
		RoomRepo:   repos.rooms,
		Locks:      locks,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	allocationService := service.NewAllocationService(service.AllocationDependencies{
		RegistrantRepo: repos.registrants,
		RoomRepo:       repos.rooms,
		Ledger:         repos.ledger,
		Settings:       settingsService,
		Cache:          appCache,
		RegistrantTTL:  cfg.Cache.RegistrantTTL(),
		Locks:          locks,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	reportService := service.NewReportService(dispatcher, logger)
	worker.StartReportWorker(reportService)

	reconcilerCfg, err := reconciler.ConfigFromNames(cfg.Reconciler.Interval(), cfg.Reconciler.AutoResolve, cfg.Reconciler.FlagPolicyDrift)
	if err != nil {
		logger.Fatal("invalid reconciler config", zap.Error(err))
	}
	engine := reconciler.New(reconciler.Dependencies{
		Ledger:    repos.ledger,
		Tolerance: settingsService,
		Reporter:  reportService,
		Metrics:   metrics,
		Logger:    logger,
	})
	supervisor, err := reconciler.NewSupervisor(engine, reconcilerCfg, logger)
	if err != nil {
		logger.Fatal("failed to build reconciler", zap.Error(err))
	}
	waitReconciler := worker.StartReconciler(ctx, supervisor, cfg.Reconciler.Enabled, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Allocations:    handlers.NewAllocationsHandler(allocationService),
		Registrants:    handlers.NewRegistrantsHandler(allocationService),
		Rooms:          handlers.NewRoomsHandler(roomService, allocationService),
		Settings:       handlers.NewSettingsHandler(settingsService),
		Reconciler:     handlers.NewReconcilerHandler(supervisor, reportService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	waitReconciler()
}

func buildRepositories(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (repositories, error) {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				return repositories{}, err
			}
		}
		return repositories{
			registrants: repository.NewRegistrantRepository(pool),
			rooms:       repository.NewRoomRepository(pool),
			ledger:      repository.NewAllocationRepository(pool),
			settings:    repository.NewSettingsRepository(pool),
		}, nil
	}

	store := repository.NewMemoryStore()
	if cfg.App.SeedFile != "" {
		if err := store.LoadFixture(cfg.App.SeedFile); err != nil {
			return repositories{}, err
		}
		logger.Info("loaded in-memory fixture", zap.String("path", cfg.App.SeedFile))
	}
	return repositories{
		registrants: store.Registrants(),
		rooms:       store.Rooms(),
		ledger:      store.Allocations(),
		settings:    store.Settings(),
	}, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
