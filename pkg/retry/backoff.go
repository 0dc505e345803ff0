package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "courtscraper/pkg/errors"
	"courtscraper/pkg/ratelimit"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the next delay duration
	NextDelay(attempt int) time.Duration
}

// errorAwareStrategy is an optional extension: strategies implementing it
// pick the delay based on the error that triggered the retry.
type errorAwareStrategy interface {
	NextDelayAfter(attempt int, err error) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness to avoid thundering herd (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))

	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// LimiterBackoff delegates delay calculation to an adaptive rate limiter, so
// retry waits stay consistent with the limiter's view of server pressure.
type LimiterBackoff struct {
	Limiter *ratelimit.AdaptiveLimiter
}

// NextDelay returns the limiter's failure delay for the attempt
func (lb *LimiterBackoff) NextDelay(attempt int) time.Duration {
	return lb.Limiter.FailureDelay(attempt)
}

// NextDelayAfter waits out the limiter's grown throttle delay when the
// server pushed back; other failures keep the milder failure schedule.
func (lb *LimiterBackoff) NextDelayAfter(attempt int, err error) time.Duration {
	if errs.Is(err, errs.ErrorTypeRateLimit) {
		return lb.Limiter.BackoffDelay()
	}
	return lb.Limiter.FailureDelay(attempt)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
