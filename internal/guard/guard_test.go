package guard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "user-1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "user-1")
	rl.Check(ctx, "user-1")
	result := rl.Check(ctx, "user-1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "user-a").Allowed)
	assert.True(t, rl.Check(ctx, "user-b").Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clk := newClock()
	rl := NewRateLimiter(1, time.Minute)
	rl.now = clk.Now
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "user-1").Allowed)
	require.False(t, rl.Check(ctx, "user-1").Allowed)

	clk.Advance(61 * time.Second)
	assert.True(t, rl.Check(ctx, "user-1").Allowed)
}

func TestRateLimiter_DisabledWhenLimitZero(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Check(context.Background(), "user-1").Allowed)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	clk := newClock()
	rl := NewRateLimiter(5, time.Minute)
	rl.now = clk.Now
	ctx := context.Background()

	rl.Check(ctx, "user-a")
	clk.Advance(45 * time.Second)
	rl.Check(ctx, "user-b")
	clk.Advance(30 * time.Second)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.windows, 1)
	assert.Contains(t, rl.windows, "user-b")
}

func TestIdempotencyGuard_AllowsFirst(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)

	result := ig.Check(context.Background(), "user-1", "req-123")
	assert.True(t, result.Allowed)
}

func TestIdempotencyGuard_BlocksDuplicate(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)
	ctx := context.Background()

	ig.Check(ctx, "user-1", "req-123")
	result := ig.Check(ctx, "user-1", "req-123")

	assert.False(t, result.Allowed)
	assert.Equal(t, "idempotency", result.Guard)
}

func TestIdempotencyGuard_KeysAreScopedPerUser(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, ig.Check(ctx, "user-1", "req-1").Allowed)
	assert.True(t, ig.Check(ctx, "user-2", "req-1").Allowed)
}

func TestIdempotencyGuard_EmptyKeyAllowed(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, ig.Check(ctx, "user-1", "").Allowed)
	assert.True(t, ig.Check(ctx, "user-1", "").Allowed)
	assert.Equal(t, 0, ig.Len())
}

func TestIdempotencyGuard_RemoveAllowsRetry(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)
	ctx := context.Background()

	ig.Check(ctx, "user-1", "req-456")
	ig.Remove("user-1", "req-456")

	require.True(t, ig.Check(ctx, "user-1", "req-456").Allowed)
}

func TestIdempotencyGuard_Bounded(t *testing.T) {
	ig, err := NewIdempotencyGuard(2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ig.Check(ctx, "user-1", fmt.Sprintf("req-%d", i))
	}
	assert.Equal(t, 2, ig.Len())
	// req-0 was evicted and is accepted again.
	assert.True(t, ig.Check(ctx, "user-1", "req-0").Allowed)
}

func TestIdempotencyGuard_ConcurrentSameKey(t *testing.T) {
	ig, err := NewIdempotencyGuard(10)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ig.Check(context.Background(), "user-1", "req-race").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, allowed)
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	result := cb.Check(context.Background(), "topic-a")
	assert.True(t, result.Allowed)
	assert.Equal(t, CircuitClosed, cb.State("topic-a"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "topic-a")
	cb.RecordFailure("topic-a")
	cb.RecordFailure("topic-a")

	result := cb.Check(ctx, "topic-a")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, CircuitOpen, cb.State("topic-a"))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "topic-a")
	cb.RecordFailure("topic-a")
	cb.RecordSuccess("topic-a")
	cb.RecordFailure("topic-a")

	assert.True(t, cb.Check(ctx, "topic-a").Allowed)
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clk := newClock()
	cb := NewCircuitBreaker(1, 5*time.Second)
	cb.now = clk.Now
	ctx := context.Background()

	cb.RecordFailure("topic-a")
	require.False(t, cb.Check(ctx, "topic-a").Allowed)

	clk.Advance(6 * time.Second)
	require.True(t, cb.Check(ctx, "topic-a").Allowed, "trial call allowed after reset timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State("topic-a"))
	assert.False(t, cb.Check(ctx, "topic-a").Allowed, "only one trial call at a time")

	cb.RecordFailure("topic-a")
	assert.Equal(t, CircuitOpen, cb.State("topic-a"))

	clk.Advance(6 * time.Second)
	require.True(t, cb.Check(ctx, "topic-a").Allowed)
	cb.RecordSuccess("topic-a")
	assert.Equal(t, CircuitClosed, cb.State("topic-a"))
}
