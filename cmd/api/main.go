package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomadair/nomadair-backend/api/routes"
	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/cancellations"
	"github.com/nomadair/nomadair-backend/internal/fx"
	"github.com/nomadair/nomadair-backend/internal/notifications"
	"github.com/nomadair/nomadair-backend/internal/orders"
	"github.com/nomadair/nomadair-backend/internal/pricing"
	"github.com/nomadair/nomadair-backend/internal/suppliers"
	"github.com/nomadair/nomadair-backend/internal/webhooks"
	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/db"
	"github.com/nomadair/nomadair-backend/pkg/logger"
	"github.com/nomadair/nomadair-backend/pkg/metrics"
	"github.com/nomadair/nomadair-backend/pkg/migrate"
	"github.com/nomadair/nomadair-backend/pkg/redis"
)

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

	supplierMetrics := metrics.NewSupplierMetrics(prometheus.DefaultRegisterer)

	bookingsRepo := bookings.NewRepository(dbClient.DB())
	markupRepo := pricing.NewMarkupRepository(dbClient.DB())
	quoteService := pricing.NewService(markupRepo, fx.NewClient(cfg.FX, logg), logg)

	registry := suppliers.NewRegistry(
		suppliers.NewDuffelClient(cfg.Duffel, supplierMetrics, logg),
		suppliers.NewHotelbedsClient(cfg.Hotelbeds, supplierMetrics, logg),
	)
	notifier := notifications.NewService(dbClient.DB(), notifications.NewHTTPMailer(cfg.Notifications), logg)

	orchestrator := orders.NewOrchestrator(bookingsRepo, registry, notifier, cfg.Retry, logg)
	canceller := cancellations.NewEngine(bookingsRepo, registry, notifier, cfg.Cancellation, cfg.Retry, logg)

	guard, err := redis.NewWebhookGuard(redisClient, cfg.Redis.WebhookGuardTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	reconciler := webhooks.NewReconciler(bookingsRepo, dbClient.DB(), guard, supplierMetrics, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DBPinger:   dbClient,
			Redis:      redisClient,
			Bookings:   bookingsRepo,
			Quotes:     quoteService,
			Markups:    markupRepo,
			Orders:     orchestrator,
			Canceller:  canceller,
			Reconciler: reconciler,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
