package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := NewPolicy(WithBackoff(100*time.Millisecond, 500*time.Millisecond))
	require.Equal(t, 100*time.Millisecond, p.Backoff(1))
	require.Equal(t, 200*time.Millisecond, p.Backoff(2))
	require.Equal(t, 400*time.Millisecond, p.Backoff(3))
	require.Equal(t, 500*time.Millisecond, p.Backoff(4))
	require.Equal(t, 500*time.Millisecond, p.Backoff(10))
	require.Equal(t, 100*time.Millisecond, p.Backoff(0))
}

func TestJitterStaysInRange(t *testing.T) {
	t.Parallel()

	p := NewPolicy(WithBackoff(time.Second, time.Minute), WithJitter())
	for i := 0; i < 50; i++ {
		d := p.Backoff(2)
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, 2*time.Second)
	}
}

func TestRetryableStatuses(t *testing.T) {
	t.Parallel()

	p := NewPolicy()
	for _, code := range []int{429, 500, 502, 503, 504} {
		require.True(t, p.RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		require.False(t, p.RetryableStatus(code), "status %d", code)
	}

	custom := NewPolicy(WithRetryableStatuses(http.StatusConflict))
	require.True(t, custom.RetryableStatus(http.StatusConflict))
	require.False(t, custom.RetryableStatus(http.StatusServiceUnavailable))
}

func TestShouldRetryHonoursBudget(t *testing.T) {
	t.Parallel()

	p := NewPolicy(WithMaxAttempts(3))
	require.Equal(t, 3, p.MaxAttempts())
	require.True(t, p.ShouldRetry(1))
	require.True(t, p.ShouldRetry(2))
	require.False(t, p.ShouldRetry(3))

	require.Equal(t, 5, NewPolicy(WithMaxAttempts(0)).MaxAttempts())
}

func TestWaitUsesInjectedSleeper(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	p := NewPolicy(
		WithBackoff(time.Second, 4*time.Second),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)
	for attempt := 1; attempt <= 4; attempt++ {
		require.NoError(t, p.Wait(context.Background(), attempt))
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}, slept)
}

func TestSleepContextCancels(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleepContext(context.Background(), 0))
}
