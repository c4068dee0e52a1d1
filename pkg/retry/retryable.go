package retry

import (
	"context"
	"time"
)

// Run invokes fn until it succeeds, fails with a non-retryable error or the policy runs out
// of attempts. Exhaustion returns an *ExhaustedError wrapping the last failure. Run returns
// ctx.Err() if the context ends while waiting between tries.
func Run[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	rc := NewContext(p)
	for {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		rc.tries++
		if !rc.IsRetryable(err) {
			return v, err
		}
		if rc.Exhausted() {
			var zero T
			return zero, &ExhaustedError{Attempts: rc.tries, Err: err}
		}
		rc.DecreaseAttempts()

		wait := rc.Wait()
		if p.onRetry != nil {
			p.onRetry(rc.tries, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Do is Run for units of work without a result.
func Do(ctx context.Context, p *Policy, fn func(context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
