// Package ratelimit paces outbound provider API calls using the
// X-RateLimit response headers both osu! and Discord emit.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bucket tracks the rate limit window for one provider endpoint
type Bucket struct {
	Remaining int       // Requests remaining in the current window
	Limit     int       // Total requests allowed per window
	ResetAt   time.Time // When the window resets
	limiter   *rate.Limiter
	mu        sync.Mutex
}

// Limiter manages rate limit buckets keyed by provider endpoint
type Limiter struct {
	buckets map[string]*Bucket
	mu      sync.RWMutex
	logger  *zap.Logger
}

// New creates a limiter
func New(logger *zap.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		logger:  logger,
	}
}

// Key builds the bucket key for a provider endpoint
func Key(providerID, endpoint string) string {
	return providerID + ":" + endpoint
}

func (l *Limiter) getBucket(key string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists := l.buckets[key]; exists {
		return bucket
	}

	// Conservative default until headers tell us otherwise: 5/s, which
	// matches Discord's global limit and is well under osu!'s.
	bucket := &Bucket{
		Remaining: 5,
		Limit:     5,
		ResetAt:   time.Now().Add(time.Second),
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}

	l.buckets[key] = bucket
	return bucket
}

// Wait blocks until a request to the keyed endpoint may proceed
func (l *Limiter) Wait(ctx context.Context, key string) error {
	bucket := l.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if bucket.Remaining <= 0 && time.Now().Before(bucket.ResetAt) {
		waitDuration := time.Until(bucket.ResetAt)
		l.logger.Warn("rate limit exhausted, waiting",
			zap.String("key", key),
			zap.Duration("wait_duration", waitDuration),
		)
		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if err := bucket.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

// UpdateFromHeaders refreshes the bucket from a provider response
func (l *Limiter) UpdateFromHeaders(key string, headers http.Header) {
	bucket := l.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			bucket.Remaining = val
		}
	}

	if limit := headers.Get("X-RateLimit-Limit"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			bucket.Limit = val
		}
	}

	// Reset comes as either an RFC3339 time or a Unix timestamp
	// depending on the provider.
	if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			bucket.ResetAt = t
		} else if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			bucket.ResetAt = time.Unix(val, 0)
		}
	}

	if bucket.Limit > 0 {
		resetDuration := time.Until(bucket.ResetAt)
		if resetDuration > 0 {
			tokensPerSecond := float64(bucket.Limit) / resetDuration.Seconds()
			bucket.limiter = rate.NewLimiter(rate.Limit(tokensPerSecond), bucket.Limit)
		}
	}

	l.logger.Debug("updated rate limit from headers",
		zap.String("key", key),
		zap.Int("remaining", bucket.Remaining),
		zap.Int("limit", bucket.Limit),
		zap.Time("reset_at", bucket.ResetAt),
	)
}

// HandleRateLimited registers a 429 response and closes the bucket until
// the advertised retry time
func (l *Limiter) HandleRateLimited(key string, headers http.Header) error {
	bucket := l.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	var retryAfter time.Duration
	if retry := headers.Get("Retry-After"); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
	}

	if retryAfter == 0 {
		if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
			if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
				retryAfter = time.Until(time.Unix(val, 0))
			}
		}
	}

	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	bucket.Remaining = 0
	bucket.ResetAt = time.Now().Add(retryAfter)

	l.logger.Warn("rate limited by provider",
		zap.String("key", key),
		zap.Duration("retry_after", retryAfter),
	)

	return fmt.Errorf("rate limited, retry after %v", retryAfter)
}

// Status returns the current window state for a key
func (l *Limiter) Status(key string) (remaining int, limit int, resetAt time.Time) {
	bucket := l.getBucket(key)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	return bucket.Remaining, bucket.Limit, bucket.ResetAt
}

// Reset drops all buckets
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets = make(map[string]*Bucket)
}
