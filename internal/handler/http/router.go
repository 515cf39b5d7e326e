package http

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/checkout-saga/pkg/health"
	"github.com/utafrali/checkout-saga/pkg/middleware"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	ServiceName string

	// CheckoutRPS and CheckoutBurst bound checkout submissions per username.
	// A non-positive CheckoutRPS disables the limit.
	CheckoutRPS   float64
	CheckoutBurst int

	// PprofAllowedCIDRs may reach /debug/pprof. Nil disables profiling.
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all checkout service routes registered.
func NewRouter(
	checkoutService CheckoutService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health and metrics endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Checkout API endpoints
	checkoutHandler := NewCheckoutHandler(checkoutService, logger)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(middleware.RateLimit(cfg.CheckoutRPS, cfg.CheckoutBurst, usernameKey, logger)).
			Post("/{username}", checkoutHandler.Checkout)
		r.Get("/attempts/{id}", checkoutHandler.GetAttempt)
		r.Get("/users/{username}/attempts", checkoutHandler.ListAttempts)
	})

	return r
}

// ContentTypeJSON rejects request bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 && r.Method != http.MethodGet {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !isJSON(ct) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func usernameKey(r *http.Request) string {
	return chi.URLParam(r, "username")
}

func isJSON(contentType string) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	return mt == "application/json"
}
