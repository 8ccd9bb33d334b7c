package telemetry

import (
	"sync"
	"time"
)

// RateLimiter throttles error-log emission during sustained failures.
type RateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

// NewRateLimiter returns a limiter allowing one Allow() success per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether enough time has passed since the last allowed call.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
