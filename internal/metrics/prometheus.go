package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_rejections_total",
			Help: "Total number of requests rejected by the send rate limiter",
		},
	)
)

// Pipeline metrics
var (
	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of send attempts by outcome",
		},
		[]string{"result"}, // delivered, failed, rejected
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_validation_failures_total",
			Help: "Total number of recipient validation failures",
		},
		[]string{"reason"}, // invalid_address, domain_not_found, missing_fields
	)

	ContentRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_content_rejected_total",
			Help: "Total number of messages rejected by the content screener",
		},
		[]string{"rule"}, // spam_phrases, capitalization
	)
)

// Transport metrics
var (
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "email_delivery_duration_seconds",
			Help:    "Duration of transport send calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_errors_total",
			Help: "Total number of transport errors by classification",
		},
		[]string{"transport", "class"}, // permanent, transient
	)

	TransportHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transport_healthy",
			Help: "Whether the transport passed its last health check (1) or not (0)",
		},
		[]string{"transport"},
	)
)
