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

	"github.com/angelmondragon/tastecert-backend/internal/certificates"
	"github.com/angelmondragon/tastecert-backend/internal/cron"
	"github.com/angelmondragon/tastecert-backend/internal/notifications"
	"github.com/angelmondragon/tastecert-backend/internal/products"
	"github.com/angelmondragon/tastecert-backend/internal/qrcodes"
	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/instance"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/migrate"
	"github.com/angelmondragon/tastecert-backend/pkg/observability"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/redis"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/drivers"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	jobName := flag.String("job", "", "with -once, run only the named job")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Release:     cfg.App.Release,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	flushSentry, err := observability.InitSentry(cfg.Sentry.DSN, cfg.App.Env, cfg.App.Release)
	if err != nil {
		logg.Error(context.Background(), "failed to init sentry", err)
		os.Exit(1)
	}
	defer flushSentry()

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

	store, err := drivers.Open(context.Background(), cfg.Storage, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open asset store", err)
		os.Exit(1)
	}

	registry, err := buildJobs(cfg, logg, dbClient, store)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), instance.GetID(), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Cron.Interval.String(),
	})

	if *once {
		if err := service.RunOnce(ctx, *jobName); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "cron run complete")
		return
	}

	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, store storage.Store) (*cron.Registry, error) {
	gdb := dbClient.DB()

	outboxJob, err := cron.NewRetentionJob("outbox-retention", logg,
		cron.RetentionTarget{
			Table:       "outbox_events",
			Days:        cfg.Cron.OutboxRetentionDays,
			DefaultDays: 30,
			Prune:       outbox.NewRepository(gdb).DeletePublishedBefore,
		},
		cron.RetentionTarget{
			Table:       "outbox_dlq",
			Days:        cfg.Cron.OutboxDLQRetentionDays,
			DefaultDays: 180,
			Prune:       outbox.NewDLQRepository(gdb).DeleteBefore,
		},
	)
	if err != nil {
		return nil, err
	}

	notificationJob, err := cron.NewRetentionJob("notification-cleanup", logg, cron.RetentionTarget{
		Table:       "notifications",
		Days:        cfg.Cron.NotificationRetentionDays,
		DefaultDays: 90,
		Prune:       notifications.NewRepository(gdb).DeleteOlderThan,
	})
	if err != nil {
		return nil, err
	}

	orphanJob, err := cron.NewOrphanAssetJob(cron.OrphanAssetJobParams{
		Logger: logg,
		Store:  store,
		Grace:  cfg.Cron.OrphanAssetGrace,
		References: []cron.AssetReferences{
			{Prefix: storage.PrefixQRCodes, Keys: qrcodes.NewRepository(gdb).ListImageKeys},
			{Prefix: storage.PrefixCertificates, Keys: certificates.NewRepository(gdb).ListPDFKeys},
			{Prefix: storage.PrefixProducts, Keys: products.NewRepository(gdb).ListImageKeys},
		},
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(outboxJob, notificationJob, orphanJob), nil
}
