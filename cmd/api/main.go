package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/backoffice-backend/api/routes"
	"github.com/angelmondragon/backoffice-backend/internal/aliases"
	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/exchange"
	"github.com/angelmondragon/backoffice-backend/internal/glaccounts"
	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/internal/packs"
	"github.com/angelmondragon/backoffice-backend/internal/reconcile"
	"github.com/angelmondragon/backoffice-backend/internal/scoring"
	"github.com/angelmondragon/backoffice-backend/pkg/config"
	"github.com/angelmondragon/backoffice-backend/pkg/db"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
	"github.com/angelmondragon/backoffice-backend/pkg/metrics"
	"github.com/angelmondragon/backoffice-backend/pkg/migrate"
	"github.com/angelmondragon/backoffice-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(registry)
	resolutionMetrics := metrics.NewResolutionMetrics(registry)

	aliasOpts := []aliases.Option{aliases.WithLogger(logg), aliases.WithRecorder(resolutionMetrics)}
	deps := routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		HTTPMetrics: httpMetrics,
		Gatherer:    registry,
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		aliasOpts = append(aliasOpts, aliases.WithCache(redisClient.AliasCache(cfg.Redis.AliasTTL)))
		deps.Redis = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, alias cache disabled")
	}

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn, cfg.Reconcile.MaxCandidates)
	lineRepo := reconcile.NewLineRepository(conn)
	packRepo := packs.NewRepository(conn)
	glService := glaccounts.NewService(conn)
	aliasStore := aliases.NewStore(conn, aliasOpts...)

	reconciler, err := reconcile.NewService(reconcile.Deps{
		Tx:         dbClient,
		Lines:      lineRepo,
		Catalog:    catalogRepo,
		Aliases:    aliasStore,
		Packs:      packRepo,
		GL:         glService,
		Scorer:     scoring.New(scoring.DefaultRules()),
		Normalizer: normalize.New(nil),
		Recorder:   resolutionMetrics,
		Logger:     logg,
	}, reconcile.PolicyFromConfig(cfg.Reconcile))
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	exchangeService, err := exchange.NewService(exchange.Deps{
		Tx:      dbClient,
		Lines:   lineRepo,
		Catalog: catalogRepo,
		Packs:   packRepo,
		GL:      glService,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create exchange service", err)
		os.Exit(1)
	}

	deps.Reconcile = reconciler
	deps.Exchange = exchangeService
	deps.Compliance = glService
	deps.Conflicts = aliasStore

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"driver":   cfg.DB.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
