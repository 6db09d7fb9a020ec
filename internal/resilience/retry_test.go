package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
)

// countingRecorder is a test double for the metrics collector.
type countingRecorder struct {
	successes, failures, retries int
}

func (r *countingRecorder) RecordSuccess(string) { r.successes++ }
func (r *countingRecorder) RecordFailure(string) { r.failures++ }
func (r *countingRecorder) RecordRetry(string)   { r.retries++ }

// fixedClock pins the retrier's clock so jitter is deterministic.
func fixedClock(nanos int64) func() time.Time {
	return func() time.Time { return time.Unix(0, nanos) }
}

func newTestRetrier(maxRetries int, base, max time.Duration) (*Retrier, *[]time.Duration) {
	r := NewRetrier(maxRetries, base, max, nil)
	sleeps := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r, sleeps
}

func TestDelayBounds(t *testing.T) {
	r := NewRetrier(5, time.Second, 30*time.Second, nil)

	for _, nanos := range []int64{0, 123, 999, 123456789} {
		r.now = fixedClock(nanos)
		var prev time.Duration
		for attempt := 1; attempt <= 5; attempt++ {
			got := r.Delay(attempt)
			base := time.Second << uint(attempt-1)
			if base > 30*time.Second {
				base = 30 * time.Second
			}
			assert.GreaterOrEqual(t, got, base, "attempt %d", attempt)
			assert.LessOrEqual(t, got, base+base/10, "attempt %d", attempt)
			assert.GreaterOrEqual(t, got, prev, "delay must be non-decreasing")
			prev = got
		}
	}
}

func TestDelayCapped(t *testing.T) {
	r := NewRetrier(10, time.Second, 5*time.Second, nil)
	r.now = fixedClock(999)

	got := r.Delay(10)
	assert.LessOrEqual(t, got, 5*time.Second+5*time.Second/10)
	assert.GreaterOrEqual(t, got, 5*time.Second)
}

func TestDelayDeterministicUnderFixedClock(t *testing.T) {
	r := NewRetrier(3, time.Second, 30*time.Second, nil)
	r.now = fixedClock(777)

	first := r.Delay(2)
	second := r.Delay(2)
	assert.Equal(t, first, second)

	r.now = fixedClock(888)
	third := r.Delay(2)
	// Different clock instants may produce different jitter.
	assert.NotEqual(t, first, third)
}

func TestDelayLargeAttemptDoesNotOverflow(t *testing.T) {
	r := NewRetrier(3, time.Second, 30*time.Second, nil)
	r.now = fixedClock(0)

	got := r.Delay(64)
	assert.Equal(t, 30*time.Second, got)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit error", llmerrors.NewRateLimitError("p", "", "slow down"), true},
		{"timeout error", llmerrors.NewTimeoutError("p", "", "deadline"), true},
		{"connection error", llmerrors.NewConnectionError("p", "", "refused"), true},
		{"internal error", llmerrors.NewInternalError("p", "", "boom"), true},
		{"auth error", llmerrors.NewAuthenticationError("p", "", "bad key"), false},
		{"validation error", llmerrors.NewInvalidRequestError("p", "", "missing field"), false},
		{"not found error", llmerrors.NewNotFoundError("p", "", "nope"), false},
		{"deadline sentinel", context.DeadlineExceeded, true},
		{"plain rate limit message", errors.New("429 too many requests"), true},
		{"plain unavailable message", errors.New("backend temporarily unavailable"), true},
		{"plain connection message", errors.New("dial tcp: connection refused"), true},
		{"plain timeout message", errors.New("request timed out"), true},
		{"plain programming error", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	t.Run("structured field wins", func(t *testing.T) {
		err := llmerrors.NewRateLimitError("p", "", "retry after 99")
		err.RetryAfter = 7 * time.Second
		got, ok := RetryAfter(err)
		require.True(t, ok)
		assert.Equal(t, 7*time.Second, got)
	})

	t.Run("message scan integer", func(t *testing.T) {
		got, ok := RetryAfter(errors.New("rate limited, Retry After 12 seconds"))
		require.True(t, ok)
		assert.Equal(t, 12*time.Second, got)
	})

	t.Run("message scan decimal", func(t *testing.T) {
		got, ok := RetryAfter(errors.New("retry-after: 1.5"))
		require.True(t, ok)
		assert.Equal(t, 1500*time.Millisecond, got)
	})

	t.Run("no hint", func(t *testing.T) {
		_, ok := RetryAfter(errors.New("boom"))
		assert.False(t, ok)
	})
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	r, sleeps := newTestRetrier(3, time.Millisecond, time.Second)
	rec := &countingRecorder{}

	got, err := Do(context.Background(), r, "p", rec, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, rec.successes)
	assert.Zero(t, rec.failures)
	assert.Empty(t, *sleeps)
}

func TestDoExhaustsBudget(t *testing.T) {
	r, sleeps := newTestRetrier(3, time.Millisecond, time.Second)
	rec := &countingRecorder{}

	calls := 0
	_, err := Do(context.Background(), r, "claude_code", rec, func(context.Context) (string, error) {
		calls++
		return "", llmerrors.NewInternalError("claude_code", "", "boom")
	})

	require.Error(t, err)
	var exhausted *llmerrors.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "failed after 3 attempts")

	assert.Equal(t, 3, calls, "exactly maxRetries attempts in total")
	assert.Len(t, *sleeps, 2, "sleeps only between attempts")
	assert.Equal(t, 3, rec.failures)
	assert.Equal(t, 2, rec.retries)
}

func TestDoNonRetryablePropagatesUnwrapped(t *testing.T) {
	r, sleeps := newTestRetrier(3, time.Millisecond, time.Second)
	rec := &countingRecorder{}

	original := llmerrors.NewInvalidRequestError("p", "", "missing field")
	calls := 0
	_, err := Do(context.Background(), r, "p", rec, func(context.Context) (string, error) {
		calls++
		return "", original
	})

	assert.Same(t, original, err.(*llmerrors.LLMError))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
	assert.Equal(t, 1, rec.failures)
	assert.Zero(t, rec.retries)
}

func TestDoHonorsRetryAfterHint(t *testing.T) {
	r, sleeps := newTestRetrier(2, time.Millisecond, time.Second)

	hinted := llmerrors.NewRateLimitError("p", "", "slow down")
	hinted.RetryAfter = 42 * time.Millisecond
	_, err := Do(context.Background(), r, "p", nil, func(context.Context) (string, error) {
		return "", hinted
	})

	require.Error(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 42*time.Millisecond, (*sleeps)[0])
}

func TestDoRecoversAfterTransientFailures(t *testing.T) {
	r, sleeps := newTestRetrier(3, time.Millisecond, time.Second)
	rec := &countingRecorder{}

	calls := 0
	got, err := Do(context.Background(), r, "p", rec, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, llmerrors.NewConnectionError("p", "", fmt.Sprintf("attempt %d", calls))
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
	assert.Len(t, *sleeps, 2)
	assert.Equal(t, 1, rec.successes)
	assert.Equal(t, 2, rec.failures)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	r := NewRetrier(3, time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, r, "p", nil, func(context.Context) (string, error) {
		return "", llmerrors.NewConnectionError("p", "", "refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
