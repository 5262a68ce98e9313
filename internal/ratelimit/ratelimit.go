// Package ratelimit throttles the rate at which a session will accept
// inbound frames, protecting the handler dispatch loop from a peer that
// floods frames faster than the application can process them.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// FrameLimiter is a token-bucket limiter over frames, not bytes: one token
// per decoded frame, independent of payload size.
type FrameLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing framesPerSecond sustained, with burst as
// the largest instantaneous batch permitted.
func New(framesPerSecond float64, burst int) *FrameLimiter {
	return &FrameLimiter{limiter: rate.NewLimiter(rate.Limit(framesPerSecond), burst)}
}

// Wait blocks until one frame's worth of budget is available, or ctx is
// done. It returns an error when ctx is done or when its deadline would
// pass before a token becomes available.
func (f *FrameLimiter) Wait(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}

// Allow reports whether a frame may be admitted right now without blocking,
// consuming a token if so.
func (f *FrameLimiter) Allow() bool {
	return f.limiter.Allow()
}
