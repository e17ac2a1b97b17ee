package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests with a token bucket and holds every caller
// back after the server asks for a pause with Retry-After.
type RateLimiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	pauseTo time.Time
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	pauseTo := r.pauseTo
	r.mu.Unlock()

	if d := time.Until(pauseTo); d > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return r.bucket.Wait(ctx)
}

// Pause delays every following Wait by d. Shorter pauses never cut an
// active one short.
func (r *RateLimiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := time.Now().Add(d); until.After(r.pauseTo) {
		r.pauseTo = until
	}
}
