package dispatch

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket owned one-per-channel. Acquire blocks until a
// token is available, spacing sends at the configured interval instead of
// bursting them at the provider.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	capacity int
	tokens   int
	last     time.Time
}

// NewLimiter creates a bucket that refills one token per interval up to
// capacity
func NewLimiter(interval time.Duration, capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		interval: interval,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
	}
}

// Acquire takes one token, sleeping until the bucket refills if empty.
// It returns early with the context's error on cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill(time.Now())
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.interval - time.Since(l.last)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill adds tokens earned since the last refill; caller holds the lock
func (l *Limiter) refill(now time.Time) {
	if l.interval <= 0 {
		l.tokens = l.capacity
		return
	}
	elapsed := now.Sub(l.last)
	earned := int(elapsed / l.interval)
	if earned <= 0 {
		return
	}
	l.tokens += earned
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = l.last.Add(time.Duration(earned) * l.interval)
}
