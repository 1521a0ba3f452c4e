package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/backoffice-backend/internal/aliases"
	"github.com/angelmondragon/backoffice-backend/internal/catalog"
	"github.com/angelmondragon/backoffice-backend/internal/cron"
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

const serviceName = "reconcile-worker"

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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

	resolutionMetrics := metrics.NewResolutionMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	aliasOpts := []aliases.Option{aliases.WithLogger(logg), aliases.WithRecorder(resolutionMetrics)}

	var lock cron.Lock = cron.NoopLock{}
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

		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Worker.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create worker lock", err)
			os.Exit(1)
		}
		lock = redisLock
	} else {
		logg.Warn(context.Background(), "redis not configured, running without a shared lock")
	}

	conn := dbClient.DB()
	reconciler, err := reconcile.NewService(reconcile.Deps{
		Tx:         dbClient,
		Lines:      reconcile.NewLineRepository(conn),
		Catalog:    catalog.NewRepository(conn, cfg.Reconcile.MaxCandidates),
		Aliases:    aliases.NewStore(conn, aliasOpts...),
		Packs:      packs.NewRepository(conn),
		GL:         glaccounts.NewService(conn),
		Scorer:     scoring.New(scoring.DefaultRules()),
		Normalizer: normalize.New(nil),
		Recorder:   resolutionMetrics,
		Logger:     logg,
	}, reconcile.PolicyFromConfig(cfg.Reconcile))
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	sweep, err := cron.NewUnmappedSweepJob(cron.UnmappedSweepJobParams{
		Logger:     logg,
		Reconciler: reconciler,
		Limit:      cfg.Worker.SweepLimit,
		MinAge:     cfg.Worker.MinAge,
		BatchDelay: cfg.Worker.BatchDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(sweep),
		Lock:       lock,
		Metrics:    jobMetrics,
		Interval:   cfg.Worker.Interval,
		Retries:    cfg.Worker.Retries,
		RetryDelay: cfg.Worker.RetryDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Worker.Interval.String(),
	})

	if *once {
		logg.Info(ctx, "running single reconcile sweep")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "reconcile sweep failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting reconcile worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconcile worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconcile worker shutting down gracefully")
}
