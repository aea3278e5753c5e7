package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-loans-backend/internal/cron"
	"github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/instance"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/migrate"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox"
	"github.com/angelmondragon/library-loans-backend/pkg/redis"
)

const (
	serviceKind = "cron-worker"
	lockName    = "cron-worker:%s"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, logger.Fields{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"workerId":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	lock, closeLock, err := buildLock(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	defer closeLock()

	registry, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	if once {
		return service.RunOnce(ctx)
	}
	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "starting cron worker")
	return service.Run(ctx)
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	snapshot, err := cron.NewOverdueSnapshotJob(cron.OverdueSnapshotJobParams{
		Logger:  logg,
		Loans:   loans.NewRepository(dbClient.DB(), nil),
		Clock:   clock.System(),
		Metrics: metrics.NewLoanMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, fmt.Errorf("overdue snapshot job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Window:     time.Duration(cfg.Cron.OutboxRetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(snapshot, retention)
}

// buildLock prefers a redis lock held for one interval so replicas never
// overlap. Without redis the worker is assumed to be the only instance.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if !cfg.Redis.Enabled() {
		logg.Warn(ctx, "redis not configured, using in-process cron lock")
		return cron.NewLocalLock(), func() {}, nil
	}

	client, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(client, client.LockKey(fmt.Sprintf(lockName, env)), cfg.Cron.Interval)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return lock, closeFn, nil
}
