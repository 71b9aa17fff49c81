package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps fixed-window counters in process memory. Counters are
// not shared between instances.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	windows   map[string]*window
	nextSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter allows limit requests per key in each window.
func NewMemoryLimiter(limit int, win time.Duration) *MemoryLimiter {
	limit, win = normalize(limit, win)
	return &MemoryLimiter{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow implements Limiter. It never returns an error.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++

	return decide(w.count, m.limit, w.resetAt), nil
}

// sweep drops expired windows at most once per window length.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
	m.nextSweep = now.Add(m.window)
}
