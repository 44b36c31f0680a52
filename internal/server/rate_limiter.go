// Package server implements a token bucket rate limiter for per-connection
// flood control that protects the hub from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

const minResumeDelay = time.Millisecond

type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter allows capacity lines per interval, with bursts of up to
// capacity lines.
func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(capacity)), capacity),
	}
}

// delay returns how long until the next line will be allowed.
func (rl *rateLimiter) delay() time.Duration {
	if rl == nil {
		return 0
	}
	r := rl.limiter.Reserve()
	defer r.Cancel()
	if d := r.Delay(); d > minResumeDelay {
		return d
	}
	return minResumeDelay
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
