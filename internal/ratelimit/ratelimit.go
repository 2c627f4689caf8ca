// Package ratelimit paces outbound traffic using token buckets.
// Each traffic class gets its own independent limiter.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class identifies a category of outbound traffic.
type Class string

const (
	// ClassSearch covers catalog and search API calls.
	ClassSearch Class = "search"
	// ClassContent covers chapter and stylesheet downloads.
	ClassContent Class = "content"
	// ClassImages covers image and cover downloads.
	ClassImages Class = "images"
)

// Limiter manages per-class rate limiting for a single upstream host.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[Class]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a limiter allowing rps requests per second per class.
// burst tokens are available immediately per class.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[Class]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Wait blocks until a request for the class is allowed or ctx is canceled.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	return l.getLimiter(class).Wait(ctx)
}

// Allow reports whether a request for the class may proceed right now.
func (l *Limiter) Allow(class Class) bool {
	return l.getLimiter(class).Allow()
}

// SetLimit overrides the rate for one class.
func (l *Limiter) SetLimit(class Class, rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[class] = rate.NewLimiter(rate.Limit(rps), burst)
}

// getLimiter returns the limiter for a class, creating one if needed.
func (l *Limiter) getLimiter(class Class) *rate.Limiter {
	// Fast path: read lock
	l.mu.RLock()
	limiter, exists := l.limiters[class]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	// Slow path: write lock to create
	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = l.limiters[class]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[class] = limiter
	return limiter
}

// Jitter sleeps for a random duration in [min, max], or returns early with
// ctx.Err() when the context is canceled. Used between successive requests
// so timing does not look mechanical.
func Jitter(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
