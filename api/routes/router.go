package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomadair/nomadair-backend/api/controllers"
	"github.com/nomadair/nomadair-backend/api/middleware"
	"github.com/nomadair/nomadair-backend/internal/bookings"
	"github.com/nomadair/nomadair-backend/internal/pricing"
	"github.com/nomadair/nomadair-backend/pkg/config"
	"github.com/nomadair/nomadair-backend/pkg/enums"
	"github.com/nomadair/nomadair-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs. Wiring happens in cmd/api.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DBPinger   controllers.Pinger
	Redis      controllers.Pinger
	Bookings   bookings.Repository
	Quotes     controllers.QuoteService
	Markups    pricing.MarkupRepository
	Orders     controllers.OrderPlacer
	Canceller  controllers.Canceller
	Reconciler controllers.WebhookProcessor
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DBPinger, deps.Redis, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	supplierSecrets := func(provider enums.Provider) string {
		switch provider {
		case enums.ProviderDuffel:
			return cfg.Duffel.WebhookSecret
		case enums.ProviderHotelbeds:
			return cfg.Hotelbeds.WebhookSecret
		}
		return ""
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/suppliers/{provider}", controllers.SupplierWebhook(deps.Reconciler, supplierSecrets, logg))
		r.Post("/payments", controllers.PaymentWebhook(deps.Bookings, deps.Orders, cfg.Payments.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/quotes", controllers.CreateQuote(deps.Quotes, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(deps.Bookings, deps.Quotes, logg))
			r.Get("/", controllers.ListBookings(deps.Bookings, logg))
			r.Get("/{bookingID}", controllers.GetBooking(deps.Bookings, logg))
			r.Post("/{bookingID}/order", controllers.PlaceOrder(deps.Bookings, deps.Orders, logg))
			r.Post("/{bookingID}/cancel", controllers.CancelBooking(deps.Bookings, deps.Canceller, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))

			r.Post("/bookings/{bookingID}/refund/complete", controllers.CompleteRefund(deps.Canceller, logg))
			r.Delete("/bookings/{bookingID}", controllers.DeleteBooking(deps.Bookings, logg))

			r.Route("/markup-configs", func(r chi.Router) {
				r.Post("/", controllers.CreateMarkupConfig(deps.Markups, logg))
				r.Get("/", controllers.ListMarkupConfigs(deps.Markups, logg))
				r.Patch("/{configID}", controllers.UpdateMarkupConfig(deps.Markups, logg))
				r.Delete("/{configID}", controllers.DeactivateMarkupConfig(deps.Markups, logg))
			})
		})
	})

	return r
}
