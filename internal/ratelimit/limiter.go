// Package ratelimit provides the token-bucket admission control shared by
// all cleanup workers.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket: the allowance refills continuously at
// rate/period and is capped at rate. A denied check consumes nothing.
type Limiter struct {
	lim *rate.Limiter
}

// New returns a limiter admitting at most r operations per period,
// starting with a full allowance.
func New(r int, period time.Duration) *Limiter {
	if r <= 0 {
		r = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Limiter{
		lim: rate.NewLimiter(rate.Limit(float64(r)/period.Seconds()), r),
	}
}

// Check reports whether one operation may proceed now.
// Concurrent checks are serialized by the limiter's internal lock; no
// ordering beyond lock acquisition is guaranteed.
func (l *Limiter) Check() bool {
	return l.lim.Allow()
}
