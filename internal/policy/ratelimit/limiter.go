// Package ratelimit spaces out requests to the same host with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
	"github.com/mkonefal2/clickbait-verifier/internal/metrics"
)

// DefaultDelay is the polite pause between two requests to one host.
const DefaultDelay = time.Second

// Limiter manages per-host token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration. A negative Delay disables limiting.
type Config struct {
	Delay time.Duration
	Burst int
}

// New creates a Limiter. A zero Delay uses DefaultDelay.
func New(cfg Config) *Limiter {
	delay := cfg.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	limit := rate.Every(delay)
	if delay < 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until rawURL's host may be requested again or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := crawler.BareHost(rawURL)
	if host == "" {
		host = "unknown"
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
