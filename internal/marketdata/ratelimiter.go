package marketdata

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// newTokenBucket builds the per-provider rate.Limiter described by a
// RateLimit: burst equals concurrency, refill is rpm/60 per second.
func newTokenBucket(rl RateLimit) *rate.Limiter {
	rps := float64(rl.RPM) / 60.0
	if rps <= 0 {
		rps = 1
	}
	burst := rl.Concurrency
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// acquireSlot waits for a token bucket slot and, when MinDelay is set,
// additionally sleeps that minimum spacing between calls.
func acquireSlot(ctx context.Context, limiter *rate.Limiter, minDelay time.Duration) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if minDelay > 0 {
		select {
		case <-time.After(minDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
