package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrRetriesExhausted signals that every retry attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetriesExhaustedError wraps ErrRetriesExhausted with the attempt count and
// the last underlying error.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted.Error(), e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// Is lets errors.Is match both the sentinel and the wrapped error chain.
func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// RetryPolicy tunes Retry.
type RetryPolicy struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on a single delay
	Multiplier float64       // exponential growth factor

	// Retryable decides whether an error is worth retrying.
	// nil means every error is retryable.
	Retryable func(error) bool

	// rand is the jitter source; nil uses the global source.
	rand *rand.Rand
}

func (p RetryPolicy) applyDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	return p
}

// Retry runs fn, retrying on retryable errors up to MaxRetries additional
// times. Delay before retry n is min(BaseDelay * Multiplier^(n-1), MaxDelay),
// randomized by a jitter factor in [0.5, 1.5] to avoid synchronized retry
// storms. A context cancellation aborts the wait and surfaces ctx.Err().
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.applyDefaults()

	var lastErr error
	attempts := policy.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}

	return &RetriesExhaustedError{Attempts: attempts, Err: lastErr}
}

// delay computes the jittered backoff before retry number attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}

	jitter := 0.5 + p.float64()
	return time.Duration(d * jitter)
}

func (p RetryPolicy) float64() float64 {
	if p.rand != nil {
		return p.rand.Float64()
	}
	return rand.Float64() //nolint:gosec // jitter does not need crypto randomness
}
