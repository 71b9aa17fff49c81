package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/metrics"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	unhealthyThreshold   = 3
)

// HealthStatus represents the current health state of a transport.
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// HealthChecker periodically checks transport health and tracks status.
type HealthChecker struct {
	mu            sync.RWMutex
	registry      *Registry
	statuses      map[string]*HealthStatus
	checkInterval time.Duration
	checkTimeout  time.Duration
	log           zerolog.Logger
	stopCh        chan struct{}
	stopped       chan struct{}
}

// NewHealthChecker creates a health checker that monitors all transports in
// the given registry. A zero interval uses the default of 30s.
func NewHealthChecker(registry *Registry, interval time.Duration, log zerolog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthChecker{
		registry:      registry,
		statuses:      make(map[string]*HealthStatus),
		checkInterval: interval,
		checkTimeout:  defaultCheckTimeout,
		log:           log,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start begins the background health check loop.
func (hc *HealthChecker) Start() {
	go hc.run()
}

// Stop signals the health check loop to terminate and waits for it to finish.
func (hc *HealthChecker) Stop() {
	close(hc.stopCh)
	<-hc.stopped
}

// GetStatus returns the health status for a transport. ok is false until
// the transport has been checked at least once.
func (hc *HealthChecker) GetStatus(name string) (HealthStatus, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	status, ok := hc.statuses[name]
	if !ok {
		return HealthStatus{}, false
	}
	return *status, true
}

// GetAllStatuses returns a snapshot of all transport health statuses.
func (hc *HealthChecker) GetAllStatuses() map[string]HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	result := make(map[string]HealthStatus, len(hc.statuses))
	for name, status := range hc.statuses {
		result[name] = *status
	}
	return result
}

func (hc *HealthChecker) run() {
	defer close(hc.stopped)

	// Run an initial check immediately.
	hc.checkAll()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.checkAll()
		}
	}
}

func (hc *HealthChecker) checkAll() {
	for _, t := range hc.registry.All() {
		hc.checkTransport(t)
	}
}

func (hc *HealthChecker) checkTransport(t Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	defer cancel()

	err := t.HealthCheck(ctx)
	name := t.GetName()

	hc.mu.Lock()
	defer hc.mu.Unlock()

	status, ok := hc.statuses[name]
	if !ok {
		status = &HealthStatus{Healthy: true}
		hc.statuses[name] = status
	}

	status.LastCheck = time.Now()

	if err != nil {
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		if status.ConsecutiveFailures >= unhealthyThreshold {
			if status.Healthy {
				hc.log.Error().Err(err).Str("transport", name).Int("failures", status.ConsecutiveFailures).Msg("transport marked unhealthy")
			}
			status.Healthy = false
		} else {
			hc.log.Warn().Err(err).Str("transport", name).Int("failures", status.ConsecutiveFailures).Msg("transport health check failed")
		}
	} else {
		if !status.Healthy {
			hc.log.Info().Str("transport", name).Msg("transport recovered")
		}
		// 1 success resets to healthy.
		status.ConsecutiveFailures = 0
		status.Healthy = true
		status.LastError = ""
	}

	gauge := 0.0
	if status.Healthy {
		gauge = 1
	}
	metrics.TransportHealthy.WithLabelValues(name).Set(gauge)
}
