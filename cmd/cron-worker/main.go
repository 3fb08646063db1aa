package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/cron"
	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/db"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/migrate"
	"github.com/nomadair/nomadair-backend/pkg/redis"
)

const lockKeyFormat = "na:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	paymentTTLJob, err := cron.NewPaymentTTLJob(cron.PaymentTTLJobParams{
		Logger: logg,
		Repo:   bookings.NewRepository(dbClient.DB()),
		TTL:    cfg.Cron.PaymentPendingTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment ttl job", err)
		os.Exit(1)
	}
	webhookRetentionJob, err := cron.NewWebhookRetentionJob(cron.WebhookRetentionJobParams{
		Logger: logg,
		DB:     dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook retention job", err)
		os.Exit(1)
	}
	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger: logg,
		DB:     dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(paymentTTLJob, webhookRetentionJob, notificationCleanupJob),
		Lock:     lock,
		Interval: cfg.Cron.SweepInterval,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
