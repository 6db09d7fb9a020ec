package resilience

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	llmerrors "github.com/scriptloom/llmrelay/pkg/errors"
)

// Retry defaults, used when the caller supplies non-positive values.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// jitterFraction is the maximum share of the computed delay added as jitter.
const jitterFraction = 0.1

// retryAfterPattern matches "retry after <seconds>" hints embedded in error
// messages, with integer or decimal seconds.
var retryAfterPattern = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+([0-9]+(?:\.[0-9]+)?)`)

// Recorder receives per-attempt outcomes. The metrics collector implements
// it; tests substitute counting fakes.
type Recorder interface {
	RecordSuccess(provider string)
	RecordFailure(provider string)
	RecordRetry(provider string)
}

// Retrier applies exponential backoff with clock-derived jitter. A Retrier
// bounds attempts, not wall-clock time; callers wanting an overall deadline
// impose it through the context.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger

	// now is injectable so jitter is deterministic under a fixed clock.
	now func() time.Time
	// sleep is injectable so tests can count backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier making at most maxRetries attempts in total.
func NewRetrier(maxRetries int, baseDelay, maxDelay time.Duration, logger *slog.Logger) *Retrier {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// MaxRetries returns the attempt budget.
func (r *Retrier) MaxRetries() int { return r.maxRetries }

// Delay computes the backoff before attempt+1, for attempt >= 1:
// min(baseDelay * 2^(attempt-1), maxDelay) plus up to 10% jitter derived
// from the current clock.
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 32 {
		shift = 32
	}
	delay := r.baseDelay << shift
	if delay <= 0 || delay > r.maxDelay {
		delay = r.maxDelay
	}
	frac := float64(r.now().UnixNano()%1000) / 999.0
	jitter := time.Duration(float64(delay) * jitterFraction * frac)
	return delay + jitter
}

// IsRetryable classifies an error as transient. Typed LLM errors answer via
// their Retryable flag; everything else is classified by context sentinel or
// message scan. Validation, auth, and programming errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *llmerrors.LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"too many requests",
		"temporarily unavailable",
		"service unavailable",
		"connection refused",
		"connection reset",
		"timeout",
		"timed out",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryAfter extracts a backend-requested wait from an error. It prefers a
// structured RetryAfter on a rate-limit error, then falls back to scanning
// the message for a "retry after <seconds>" hint.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var llmErr *llmerrors.LLMError
	if errors.As(err, &llmErr) && llmErr.RetryAfter > 0 {
		return llmErr.RetryAfter, true
	}
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0, false
	}
	secs, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Do runs fn with retry. Exactly maxRetries attempts are made in total. A
// non-retryable error propagates immediately and unwrapped; exhausting the
// budget yields a *errors.RetryExhaustedError wrapping the last failure.
func Do[T any](ctx context.Context, r *Retrier, provider string, rec Recorder, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if rec != nil {
				rec.RecordSuccess(provider)
			}
			return result, nil
		}

		lastErr = err
		if rec != nil {
			rec.RecordFailure(provider)
		}

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == r.maxRetries {
			break
		}

		wait, ok := RetryAfter(err)
		if !ok {
			wait = r.Delay(attempt)
		}
		r.logger.Debug("retrying after transient error",
			"provider", provider,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if rec != nil {
			rec.RecordRetry(provider)
		}
		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, &llmerrors.RetryExhaustedError{
		Provider: provider,
		Attempts: r.maxRetries,
		Err:      lastErr,
	}
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
