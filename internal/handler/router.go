package handler

import (
	"net/http"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/config"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Everything under /v1 except the auth endpoints sits behind the session
// guard.
func NewRouter(
	sessions *service.SessionManager,
	catalog *service.CatalogService,
	trade *service.TradeService,
	notify *service.Dispatcher,
	delivery *service.DeliveryService,
	impact *service.ImpactService,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Session lifecycle. Login and register are the only routes a
		// logged-out caller needs; /auth/session reports state for any
		// token, including none.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authLoginHandler(sessions, notify, logger))
			r.Post("/register", authRegisterHandler(sessions, logger))
			r.Get("/session", authSessionHandler(sessions, logger))

			r.Group(func(r chi.Router) {
				r.Use(SessionGuard(sessions, logger))
				r.Post("/logout", authLogoutHandler(sessions, logger))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(SessionGuard(sessions, logger))

			// Catalog
			r.Get("/products", listProductsHandler(catalog, logger))
			r.Group(func(r chi.Router) {
				r.Use(RequireAuthorities(logger, "ROLE_COMPANY", "ROLE_ADMIN"))
				r.Post("/products", createProductHandler(catalog, logger))
				r.Patch("/products/{productId}", updateProductHandler(catalog, logger))
				r.Delete("/products/{productId}", deleteProductHandler(catalog, logger))
			})

			// Trade
			r.Get("/transactions", listTransactionsHandler(trade, logger))
			r.Post("/transactions", createTransactionHandler(trade, logger))
			r.Post("/transactions/{transactionId}/accept", acceptTransactionHandler(trade, logger))
			r.Post("/transactions/{transactionId}/reject", rejectTransactionHandler(trade, logger))
			r.Post("/transactions/{transactionId}/cancel", cancelTransactionHandler(trade, logger))

			// Delivery tracking
			r.Get("/transactions/{transactionId}/tracking", trackingStatusHandler(delivery, logger))
			r.Post("/transactions/{transactionId}/tracking/start", trackingStartHandler(delivery, logger))
			r.Post("/transactions/{transactionId}/tracking/stop", trackingStopHandler(delivery, logger))

			// Notifications
			r.Get("/notifications", listNotificationsHandler(notify, logger))
			r.Get("/notifications/unread-count", unreadCountHandler(notify, logger))
			r.Post("/notifications/{notificationId}/read", markNotificationReadHandler(notify, logger))
			r.Post("/notifications/read-all", markAllNotificationsReadHandler(notify, logger))
			r.Delete("/notifications/{notificationId}", deleteNotificationHandler(notify, logger))

			// Companies & impact
			r.Get("/companies/{companyId}", getCompanyHandler(impact, logger))
			r.Get("/companies/{companyId}/impact", getImpactHandler(impact, logger))

			// Gateway counters
			r.Get("/metrics/gateway", gatewayMetricsHandler(metrics))
		})
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func gatewayMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSnapshot())
	}
}
