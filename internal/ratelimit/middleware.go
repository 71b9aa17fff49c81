package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/metrics"
)

// RejectionMessage is the error text returned with 429 responses.
const RejectionMessage = "Too many email requests from this IP, please try again later."

// Middleware counts each request against its client IP and rejects with 429
// once the limit is exceeded. The key is r.RemoteAddr, so any proxy header
// handling has to happen earlier in the chain. Limiter errors are logged and
// the request is allowed.
func Middleware(l Limiter, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)

			d, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Error().Err(err).Str("client_ip", key).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			reset := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
			if reset < 0 {
				reset = 0
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(reset))

			if !d.Allowed {
				metrics.RateLimitRejectionsTotal.Inc()
				log.Warn().Str("client_ip", key).Str("path", r.URL.Path).Msg("rate limit exceeded")

				h.Set("Retry-After", strconv.Itoa(reset))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   RejectionMessage,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr, or RemoteAddr itself when it
// carries no port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
