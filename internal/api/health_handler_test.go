package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sungwon/mailrelay/internal/transport"
)

type fakeHealth struct {
	statuses map[string]transport.HealthStatus
}

func (f *fakeHealth) GetStatus(name string) (transport.HealthStatus, bool) {
	status, ok := f.statuses[name]
	return status, ok
}

func (f *fakeHealth) GetAllStatuses() map[string]transport.HealthStatus { return f.statuses }

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected status healthy, got %s", resp["status"])
	}
	if _, err := time.Parse(time.RFC3339, resp["timestamp"]); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %q: %v", resp["timestamp"], err)
	}
}

func TestReadyzHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    TransportHealth
		wantStatus int
		retryAfter bool
	}{
		{"no checker", nil, http.StatusOK, false},
		{
			"healthy transport",
			&fakeHealth{statuses: map[string]transport.HealthStatus{"smtp": {Healthy: true}}},
			http.StatusOK, false,
		},
		{
			"unhealthy transport",
			&fakeHealth{statuses: map[string]transport.HealthStatus{"smtp": {LastError: "dial tcp: refused"}}},
			http.StatusServiceUnavailable, true,
		},
		{
			"transport not yet checked",
			&fakeHealth{statuses: map[string]transport.HealthStatus{}},
			http.StatusServiceUnavailable, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			rec := httptest.NewRecorder()

			ReadyzHandler(tt.checker, "smtp").ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Retry-After") != ""; got != tt.retryAfter {
				t.Errorf("expected Retry-After present=%v, got %v", tt.retryAfter, got)
			}
		})
	}
}
