package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

func TestDoSucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesRetryableErrorsUpToMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return model.NewEngineError(model.ErrTimeoutOrCancel, "openai", "timed out", nil)
	})
	if err == nil {
		t.Fatal("expected Do to return the final error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly MaxAttempts (3)", calls)
	}
}

func TestDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return model.NewEngineError(model.ErrAuthFailure, "openai", "bad key", nil)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (auth failures must not consume retry budget)", calls)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return model.NewEngineError(model.ErrEmptyOutput, "openai", "empty", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}, func(ctx context.Context) error {
		calls++
		return model.NewEngineError(model.ErrGeneric, "openai", "fail", nil)
	})
	if err == nil {
		t.Fatal("expected an error from a pre-canceled context")
	}
	if !errors.Is(err, context.Canceled) && calls > 1 {
		t.Errorf("expected cancellation to cut the retry loop short, got %d calls", calls)
	}
}

func TestFixedMultiplierBackoffDoublesAndClampsToMax(t *testing.T) {
	bo := &fixedMultiplierBackoff{base: 10 * time.Millisecond, max: 35 * time.Millisecond}
	first := bo.NextBackOff()
	second := bo.NextBackOff()
	third := bo.NextBackOff()
	if first != 10*time.Millisecond {
		t.Errorf("first = %v, want 10ms", first)
	}
	if second != 20*time.Millisecond {
		t.Errorf("second = %v, want 20ms", second)
	}
	if third != 35*time.Millisecond {
		t.Errorf("third = %v, want clamped to 35ms", third)
	}
}
