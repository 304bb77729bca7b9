// Package ratelimit provides a wrapper around golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter and counts rejected events.
type Limiter struct {
	limiter  *rate.Limiter
	rejected atomic.Uint64
}

// New creates a limiter allowing perSecond events with the given burst.
// A non-positive perSecond disables limiting.
func New(perSecond float64, burst int) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether an event may happen now. Rejections are counted.
func (l *Limiter) Allow() bool {
	if l.limiter.Allow() {
		return true
	}
	l.rejected.Add(1)
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Rejected returns how many events Allow refused.
func (l *Limiter) Rejected() uint64 {
	return l.rejected.Load()
}

// Tokens returns the current number of available tokens.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// SetLimit updates the rate.
func (l *Limiter) SetLimit(perSecond float64) {
	if perSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(perSecond))
}
