package api

import (
	"net/http"
	"time"

	"github.com/sungwon/mailrelay/internal/transport"
)

// TransportHealth reports transport health for readiness checks.
type TransportHealth interface {
	GetStatus(name string) (transport.HealthStatus, bool)
	GetAllStatuses() map[string]transport.HealthStatus
}

// HealthHandler handles GET /health.
// Always returns 200 OK with {"status":"healthy","timestamp":...}.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadyzHandler handles GET /readyz.
// Returns 200 when the active transport is healthy, 503 with a Retry-After
// header otherwise. A nil checker always reports ready.
func ReadyzHandler(checker TransportHealth, active string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		statuses := checker.GetAllStatuses()
		if status, ok := checker.GetStatus(active); !ok || !status.Healthy {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"success":    false,
				"error":      "transport unavailable",
				"transports": statuses,
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ready",
			"transports": statuses,
		})
	}
}
