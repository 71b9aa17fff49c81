package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig holds all dependencies needed to construct the router.
type RouterConfig struct {
	Mailer Mailer
	Log    zerolog.Logger

	// RealIP resolves the client address before anything keys on it.
	// Nil leaves r.RemoteAddr as the TCP peer. See TrustedProxyRealIP.
	RealIP func(http.Handler) http.Handler

	// RateLimit wraps the send routes. Nil disables rate limiting.
	RateLimit func(http.Handler) http.Handler

	// BulkWriteTimeout extends the write deadline of /send-bulk past the
	// server's WriteTimeout. Zero keeps the server default.
	BulkWriteTimeout time.Duration

	// Health and ActiveTransport back GET /readyz.
	Health          TransportHealth
	ActiveTransport string

	MaxBodyBytes int64

	// MetricsPath registers the prometheus handler when non-empty.
	MetricsPath string
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	if cfg.RealIP != nil {
		r.Use(cfg.RealIP)
	}
	r.Use(CorrelationIDMiddleware(cfg.Log))
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))
	r.Use(SecurityHeaders)
	r.Use(MetricsMiddleware)
	r.Use(BodyLimit(cfg.MaxBodyBytes))

	r.NotFound(NotFoundHandler())
	r.MethodNotAllowed(MethodNotAllowedHandler())

	// Health endpoints
	r.Get("/health", HealthHandler())
	r.Get("/readyz", ReadyzHandler(cfg.Health, cfg.ActiveTransport))

	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	// Send routes share one rate limit bucket per client address.
	r.Group(func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Post("/send-email", SendEmailHandler(cfg.Mailer))
		r.Post("/send-bulk", SendBulkHandler(cfg.Mailer, cfg.BulkWriteTimeout))
	})

	return r
}
