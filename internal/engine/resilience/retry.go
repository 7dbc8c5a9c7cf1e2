package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// RetryConfig is a stage-configurable retry policy, matching spec §4.3 and
// the `retry_defaults` configuration map from §6.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfigs are the per-stage defaults named in spec §4.3.
var DefaultRetryConfigs = map[model.Stage]RetryConfig{
	model.StageScript:  {MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
	model.StageVisuals: {MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
	model.StageVoice:   {MaxAttempts: 1, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
	model.StageRender:  {MaxAttempts: 1, BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second},
}

// fixedMultiplierBackoff implements backoff.BackOff with the spec's exact
// `base * 2^attempt` curve, clamped to max, instead of cenkalti/backoff's
// default jittered exponential curve.
type fixedMultiplierBackoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func (f *fixedMultiplierBackoff) NextBackOff() time.Duration {
	d := f.base << uint(f.attempt)
	if d <= 0 || d > f.max {
		d = f.max
	}
	f.attempt++
	return d
}

func (f *fixedMultiplierBackoff) Reset() { f.attempt = 0 }

// Do runs fn, retrying on retryable *model.EngineError failures up to
// cfg.MaxAttempts total attempts with the configured backoff, honoring ctx
// cancellation at every await point. Non-retryable errors (auth, policy,
// invalid input) return immediately without consuming further attempts.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := 0
	bo := &fixedMultiplierBackoff{base: cfg.BaseDelay, max: cfg.MaxDelay}

	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var ee *model.EngineError
		if errors.As(err, &ee) && !ee.Retryable() {
			return backoff.Permanent(err)
		}
		if attempts >= cfg.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	limited := backoff.WithMaxRetries(bo, uint64(maxInt(cfg.MaxAttempts-1, 0)))
	withCtx := backoff.WithContext(limited, ctx)
	return backoff.Retry(operation, withCtx)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
