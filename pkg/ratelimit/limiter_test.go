package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Jitter = 0 // deterministic waits
	return cfg
}

func TestAcquireFirstRequestDoesNotWait(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	var slept time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}

	require.NoError(t, l.Acquire(context.Background(), "cases"))
	assert.Zero(t, slept)
}

func TestAcquireSpacesRequestsPerEndpoint(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	now := time.Now()
	l.now = func() time.Time { return now }

	var slept time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}

	require.NoError(t, l.Acquire(context.Background(), "cases"))
	require.NoError(t, l.Acquire(context.Background(), "cases"))
	assert.Equal(t, time.Second, slept)

	// A different endpoint has its own schedule
	slept = 0
	require.NoError(t, l.Acquire(context.Background(), "audio"))
	assert.Zero(t, slept)
}

func TestAcquirePartialElapsed(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	now := time.Now()
	l.now = func() time.Time { return now }

	var slept time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		return nil
	}

	require.NoError(t, l.Acquire(context.Background(), "cases"))
	now = now.Add(600 * time.Millisecond)
	require.NoError(t, l.Acquire(context.Background(), "cases"))
	assert.Equal(t, 400*time.Millisecond, slept)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.Acquire(context.Background(), "cases"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, "cases")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitFailuresIncreaseDelayUpToMax(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	prev := l.Snapshot().CurrentDelay
	for i := 0; i < 20; i++ {
		l.ReportFailure("cases", true)
		cur := l.Snapshot().CurrentDelay
		if prev < 60*time.Second {
			assert.Greater(t, cur, prev, "delay must grow while below the cap")
		}
		assert.LessOrEqual(t, cur, 60*time.Second)
		prev = cur
	}
	assert.Equal(t, 60*time.Second, l.Snapshot().CurrentDelay)
}

func TestSuccessesDecreaseDelayTowardFloor(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	// Push the delay up first
	for i := 0; i < 5; i++ {
		l.ReportFailure("cases", true)
	}
	floor := l.Snapshot().GlobalDelayFloor

	prev := l.Snapshot().CurrentDelay
	for i := 0; i < 200; i++ {
		l.ReportSuccess("cases")
		cur := l.Snapshot().CurrentDelay
		assert.LessOrEqual(t, cur, prev)
		assert.GreaterOrEqual(t, cur, 500*time.Millisecond)
		prev = cur
	}

	// After a long healthy streak the floor relaxes below its raised value
	assert.Less(t, l.Snapshot().GlobalDelayFloor, floor)
	assert.GreaterOrEqual(t, l.Snapshot().GlobalDelayFloor, 500*time.Millisecond)
}

func TestNonRateLimitFailureLeavesDelayAlone(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	before := l.Snapshot().CurrentDelay
	l.ReportFailure("cases", false)
	snap := l.Snapshot()
	assert.Equal(t, before, snap.CurrentDelay)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
}

func TestFloorRaisesAfterThreeConsecutiveFailures(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	l.ReportFailure("cases", true)
	l.ReportFailure("cases", true)
	assert.Equal(t, 500*time.Millisecond, l.Snapshot().GlobalDelayFloor)

	l.ReportFailure("cases", true)
	snap := l.Snapshot()
	assert.Greater(t, snap.GlobalDelayFloor, 500*time.Millisecond)
	// Floor never exceeds half the current delay
	assert.LessOrEqual(t, snap.GlobalDelayFloor, snap.CurrentDelay/2)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	l.ReportFailure("cases", true)
	l.ReportFailure("cases", true)
	l.ReportSuccess("cases")

	snap := l.Snapshot()
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Equal(t, 1, snap.ConsecutiveSuccesses)
}

func TestRecoverySteepensAfterTenSuccesses(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	for i := 0; i < 6; i++ {
		l.ReportFailure("cases", true)
	}

	// Nine successes at the plain recovery factor
	for i := 0; i < 9; i++ {
		l.ReportSuccess("cases")
	}
	beforeTenth := l.Snapshot().CurrentDelay

	l.ReportSuccess("cases")
	afterTenth := l.Snapshot().CurrentDelay

	// The tenth success shrinks by recovery*0.9, steeper than 0.95 alone
	expected := time.Duration(float64(beforeTenth) * 0.95 * 0.9)
	assert.InDelta(t, float64(expected), float64(afterTenth), float64(time.Millisecond))
}

func TestFailureDelayGrowsWithAttempt(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	assert.Equal(t, 500*time.Millisecond, l.FailureDelay(1))
	assert.Equal(t, 750*time.Millisecond, l.FailureDelay(2))
	assert.Equal(t, 1125*time.Millisecond, l.FailureDelay(3))
	// Out-of-range attempts clamp to the first step
	assert.Equal(t, 500*time.Millisecond, l.FailureDelay(0))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	l := NewAdaptiveLimiter(cfg)

	base := time.Second
	lo := time.Duration(float64(base) * (1 - cfg.Jitter/2))
	hi := time.Duration(float64(base) * (1 + cfg.Jitter/2))

	for i := 0; i < 100; i++ {
		l.mu.Lock()
		d := l.applyJitter(base)
		l.mu.Unlock()
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestBackoffDelayTracksCurrentDelay(t *testing.T) {
	l := NewAdaptiveLimiter(testConfig())

	l.ReportFailure("cases", true)
	assert.Equal(t, 2*time.Second, l.BackoffDelay())
}
