package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Limiter defines the interface for adaptive per-endpoint rate limiting
type Limiter interface {
	// Acquire blocks until the endpoint may be called again
	Acquire(ctx context.Context, endpointKey string) error
	// ReportSuccess records a successful call to the endpoint
	ReportSuccess(endpointKey string)
	// ReportFailure records a failed call; isRateLimit marks throttling responses
	ReportFailure(endpointKey string, isRateLimit bool)
}

// Config holds the tuning knobs for an AdaptiveLimiter
type Config struct {
	// InitialDelay is the starting delay between requests
	InitialDelay time.Duration
	// MinDelay is the hard lower bound on the delay
	MinDelay time.Duration
	// MaxDelay is the hard upper bound on the delay
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay when a rate limit is hit
	BackoffFactor float64
	// RecoveryFactor multiplies the delay when a request succeeds
	RecoveryFactor float64
	// Jitter adds randomness to waits (0-1.0) to avoid synchronized requests
	Jitter float64
}

// DefaultConfig returns limiter settings tuned for the archive API
func DefaultConfig() Config {
	return Config{
		InitialDelay:   1 * time.Second,
		MinDelay:       500 * time.Millisecond,
		MaxDelay:       60 * time.Second,
		BackoffFactor:  2.0,
		RecoveryFactor: 0.95,
		Jitter:         0.25,
	}
}

// AdaptiveLimiter spaces requests per endpoint and adjusts the spacing from
// observed outcomes: throttling grows the delay exponentially, success
// shrinks it back toward a floor. The floor itself ratchets up under
// sustained pressure so one lucky success doesn't erase a backoff, and
// relaxes again only after a long healthy streak.
type AdaptiveLimiter struct {
	mu sync.Mutex

	currentDelay     time.Duration
	minDelay         time.Duration
	maxDelay         time.Duration
	backoffFactor    float64
	recoveryFactor   float64
	jitter           float64
	globalDelayFloor time.Duration

	consecutiveSuccesses int
	consecutiveFailures  int

	lastRequest map[string]time.Time

	// Injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAdaptiveLimiter creates a limiter with the given configuration
func NewAdaptiveLimiter(cfg Config) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		currentDelay:     cfg.InitialDelay,
		minDelay:         cfg.MinDelay,
		maxDelay:         cfg.MaxDelay,
		backoffFactor:    cfg.BackoffFactor,
		recoveryFactor:   cfg.RecoveryFactor,
		jitter:           cfg.Jitter,
		globalDelayFloor: cfg.MinDelay,
		lastRequest:      make(map[string]time.Time),
		now:              time.Now,
		sleep:            sleepCtx,
	}
}

// sleepCtx waits for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until enough time has passed since the last request to the
// endpoint, then records the request time. The wait gets symmetric jitter of
// up to half the jitter fraction in each direction.
func (l *AdaptiveLimiter) Acquire(ctx context.Context, endpointKey string) error {
	l.mu.Lock()
	var wait time.Duration
	if last, ok := l.lastRequest[endpointKey]; ok {
		elapsed := l.now().Sub(last)
		if elapsed < l.currentDelay {
			wait = l.applyJitter(l.currentDelay - elapsed)
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.lastRequest[endpointKey] = l.now()
	l.mu.Unlock()
	return nil
}

// ReportSuccess shrinks the delay toward the global floor. After 10
// consecutive successes recovery gets steeper, and after 20 the floor itself
// relaxes toward the configured minimum.
func (l *AdaptiveLimiter) ReportSuccess(endpointKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveSuccesses++
	l.consecutiveFailures = 0

	recovery := l.recoveryFactor
	if l.consecutiveSuccesses >= 10 {
		recovery *= 0.9
		if l.consecutiveSuccesses >= 20 {
			l.globalDelayFloor = maxDuration(
				l.minDelay,
				time.Duration(float64(l.globalDelayFloor)*0.95),
			)
		}
	}

	l.currentDelay = maxDuration(
		l.globalDelayFloor,
		time.Duration(float64(l.currentDelay)*recovery),
	)
}

// ReportFailure grows the delay when the failure was a throttling signal.
// Three consecutive failures in a row also raise the global floor, bounded
// by half the current delay.
func (l *AdaptiveLimiter) ReportFailure(endpointKey string, isRateLimit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveSuccesses = 0
	l.consecutiveFailures++

	if !isRateLimit {
		return
	}

	l.currentDelay = minDuration(
		l.maxDelay,
		time.Duration(float64(l.currentDelay)*l.backoffFactor),
	)

	if l.consecutiveFailures >= 3 {
		l.globalDelayFloor = minDuration(
			l.currentDelay/2,
			time.Duration(float64(l.globalDelayFloor)*1.5),
		)
	}
}

// FailureDelay returns the wait before retrying a non-rate-limit failure:
// minDelay * 1.5^(attempt-1), with jitter applied. Attempts are 1-based.
func (l *AdaptiveLimiter) FailureDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d := time.Duration(float64(l.minDelay) * math.Pow(1.5, float64(attempt-1)))
	return l.applyJitter(d)
}

// BackoffDelay returns the current delay with jitter, for callers that want
// to wait out a throttle before retrying.
func (l *AdaptiveLimiter) BackoffDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyJitter(l.currentDelay)
}

// applyJitter spreads d by up to jitter*d/2 in each direction.
// Callers must hold l.mu.
func (l *AdaptiveLimiter) applyJitter(d time.Duration) time.Duration {
	if l.jitter <= 0 || d <= 0 {
		return d
	}
	half := float64(d) * l.jitter / 2
	offset := (rand.Float64()*2 - 1) * half
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// Snapshot reports the limiter's current adaptive state
type Snapshot struct {
	CurrentDelay         time.Duration
	GlobalDelayFloor     time.Duration
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// Snapshot returns a copy of the limiter's current state
func (l *AdaptiveLimiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		CurrentDelay:         l.currentDelay,
		GlobalDelayFloor:     l.globalDelayFloor,
		ConsecutiveSuccesses: l.consecutiveSuccesses,
		ConsecutiveFailures:  l.consecutiveFailures,
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
