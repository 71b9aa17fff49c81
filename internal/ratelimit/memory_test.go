package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, win time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(limit, win)
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(5, 15*time.Minute)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d: expected remaining %d, got %d", i, 5-i, d.Remaining)
		}
	}

	d, _ := l.Allow(ctx, "10.0.0.1")
	if d.Allowed {
		t.Error("expected sixth request to be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", d.Remaining)
	}
	if d.Limit != 5 {
		t.Errorf("expected limit 5, got %d", d.Limit)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "a"); !d.Allowed {
		t.Fatal("expected first request for a to be allowed")
	}
	if d, _ := l.Allow(ctx, "a"); d.Allowed {
		t.Fatal("expected second request for a to be rejected")
	}
	if d, _ := l.Allow(ctx, "b"); !d.Allowed {
		t.Error("expected first request for b to be allowed")
	}
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	l, clock := newTestLimiter(2, 15*time.Minute)
	ctx := context.Background()
	start := clock.Now()

	l.Allow(ctx, "ip")
	l.Allow(ctx, "ip")
	d, _ := l.Allow(ctx, "ip")
	if d.Allowed {
		t.Fatal("expected third request to be rejected")
	}
	if want := start.Add(15 * time.Minute); !d.ResetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, d.ResetAt)
	}

	clock.Advance(14 * time.Minute)
	if d, _ := l.Allow(ctx, "ip"); d.Allowed {
		t.Error("expected request inside the window to be rejected")
	}

	clock.Advance(time.Minute)
	d, _ = l.Allow(ctx, "ip")
	if !d.Allowed {
		t.Fatal("expected request after the window to be allowed")
	}
	if d.Remaining != 1 {
		t.Errorf("expected remaining 1 in the new window, got %d", d.Remaining)
	}
}

func TestMemoryLimiter_SweepsExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "b")
	clock.Advance(2 * time.Minute)
	l.Allow(ctx, "c")

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.windows) != 1 {
		t.Errorf("expected only the live window to remain, got %d", len(l.windows))
	}
}

func TestMemoryLimiter_Defaults(t *testing.T) {
	l := NewMemoryLimiter(0, 0)
	if l.limit != 5 {
		t.Errorf("expected default limit 5, got %d", l.limit)
	}
	if l.window != 15*time.Minute {
		t.Errorf("expected default window 15m, got %v", l.window)
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := l.Allow(ctx, "shared")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed requests, got %d", allowed)
	}
}

func TestNewFromConfig_Memory(t *testing.T) {
	l, closeFn, err := NewFromConfig(context.Background(), config.RateLimitConfig{MaxRequests: 3, Window: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeFn()
	if _, ok := l.(*MemoryLimiter); !ok {
		t.Errorf("expected *MemoryLimiter, got %T", l)
	}
}

func TestNewFromConfig_BadRedisURL(t *testing.T) {
	_, _, err := NewFromConfig(context.Background(), config.RateLimitConfig{RedisURL: "not-a-url://"}, zerolog.Nop())
	if err == nil {
		t.Error("expected error for an invalid redis url")
	}
}
