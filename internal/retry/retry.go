package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when a Policy runs out of attempts or time.
var ErrExhausted = errors.New("retry: exhausted")

// Policy bounds a "keep asking until the device answers" loop.
//
// A zero MaxAttempts or Budget means that limit is not applied. With both
// zero the loop only ends when the context does.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Budget      time.Duration `yaml:"budget"`
	// Interval is the pause between attempts.
	Interval time.Duration `yaml:"interval"`
}

// Bounded reports whether the policy can end on its own.
func (p Policy) Bounded() bool {
	return p.MaxAttempts > 0 || p.Budget > 0
}

// Poll calls fn until it reports done, returns an error, or the policy is
// exhausted. fn returning (v, false, nil) means "not yet, ask again".
func Poll[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, fmt.Errorf("ctx is nil")
	}

	runCtx := ctx
	if p.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.Budget)
		defer cancel()
	}

	attempts := 0
	for {
		if err := runCtx.Err(); err != nil {
			return zero, exhausted(ctx, attempts, err)
		}

		attempts++
		v, done, err := fn(runCtx)
		if err != nil {
			// A budget expiring inside fn is exhaustion, not a device error.
			if ctx.Err() == nil && runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
				return zero, exhausted(ctx, attempts, err)
			}
			return zero, err
		}
		if done {
			return v, nil
		}

		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return zero, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
		}
		if !SleepCtx(runCtx, p.Interval) {
			return zero, exhausted(ctx, attempts, runCtx.Err())
		}
	}
}

func exhausted(parent context.Context, attempts int, cause error) error {
	// Cancellation of the caller's own context is reported as such.
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempts, cause)
}

// SleepCtx waits for d or until ctx is done. It reports false when ctx ended
// first.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
