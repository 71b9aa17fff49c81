package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/config"
)

// NewFromConfig returns a Redis-backed limiter when a Redis URL is
// configured and an in-process one otherwise. The returned close function
// releases the Redis client and is never nil.
func NewFromConfig(ctx context.Context, cfg config.RateLimitConfig, log zerolog.Logger) (Limiter, func() error, error) {
	if cfg.RedisURL == "" {
		log.Info().
			Int("max_requests", cfg.MaxRequests).
			Dur("window", cfg.Window).
			Msg("using in-memory rate limiter")
		return NewMemoryLimiter(cfg.MaxRequests, cfg.Window), func() error { return nil }, nil
	}

	client, err := NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis not reachable at startup, rate limiter will fail open until it is")
	}

	log.Info().
		Int("max_requests", cfg.MaxRequests).
		Dur("window", cfg.Window).
		Msg("using redis rate limiter")
	return NewRedisLimiter(client, cfg.MaxRequests, cfg.Window, cfg.KeyPrefix), client.Close, nil
}
