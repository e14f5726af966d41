package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return errBoom
	})

	// 1 initial + 3 retries.
	if calls != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected last error in the chain, got %v", err)
	}

	var ree *RetriesExhaustedError
	if !errors.As(err, &ree) {
		t.Fatal("expected RetriesExhaustedError")
	}
	if ree.Attempts != 4 {
		t.Errorf("expected Attempts=4, got %d", ree.Attempts)
	}
}

func TestRetry_RecoversMidway(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	policy := fastPolicy(3)
	policy.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Retry(context.Background(), policy, func(_ context.Context) error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error unwrapped, got %v", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("non-retryable failure must not be labeled retries-exhausted")
	}
}

func TestRetry_ContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, Multiplier: 2.0, MaxDelay: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, policy, func(_ context.Context) error {
		calls++
		return errBoom
	})
	if calls != 1 {
		t.Errorf("expected 1 call before the long backoff, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryPolicy_DelayBoundsWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
	}.applyDefaults()

	// Expected raw delays: 1s, 2s, 4s; jitter scales each by [0.5, 1.5].
	for attempt, raw := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		for i := 0; i < 50; i++ {
			d := policy.delay(attempt)
			if d < raw/2 || d > raw*3/2 {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, raw/2, raw*3/2)
			}
		}
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   3 * time.Second,
		Multiplier: 10.0,
	}.applyDefaults()

	for i := 0; i < 50; i++ {
		if d := policy.delay(5); d > 3*time.Second*3/2 {
			t.Fatalf("delay %v exceeds jittered cap", d)
		}
	}
}
