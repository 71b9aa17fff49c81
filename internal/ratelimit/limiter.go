// Package ratelimit enforces a fixed-window request limit per client key.
package ratelimit

import (
	"context"
	"time"
)

const (
	defaultMaxRequests = 5
	defaultWindow      = 15 * time.Minute
)

// Decision is the outcome of counting one request against a key.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts a request against key and reports whether it is allowed.
// Increment and check happen as one operation.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = defaultMaxRequests
	}
	if window <= 0 {
		window = defaultWindow
	}
	return limit, window
}
