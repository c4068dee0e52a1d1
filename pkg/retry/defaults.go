package retry

import (
	"context"
	"errors"
	"time"
)

// Defaults of the shipped policies.
const (
	ConnectionAttempts = 5
	ConnectionWait     = 2 * time.Second

	OperationAttempts = 60
	OperationWait     = 5 * time.Second
)

// ConnectionPolicy is used while bringing a connection up: a few retries on i/o failures
// with a short wait.
func ConnectionPolicy() *Policy {
	return NewPolicy(ConnectionAttempts, int64(ConnectionWait/time.Second), time.Second, ErrIO)
}

// OperationPolicy is used around individual operations: a large budget with a longer wait.
func OperationPolicy() *Policy {
	return NewPolicy(OperationAttempts, int64(OperationWait/time.Second), time.Second, ErrIO)
}

// AwaitPolicy never gives up, never sleeps and only retries interruptions.
func AwaitPolicy() *Policy {
	return NewPolicy(Unbounded, 0, time.Millisecond, ErrInterrupted)
}

// Await blocks on fn under AwaitPolicy. fn reports a spurious wake-up with ErrInterrupted
// and is called again straight away. Cancelling ctx interrupts the wait, which counts as
// success. Any other error from fn is returned as is.
func Await(ctx context.Context, fn func(context.Context) error) error {
	err := Do(ctx, AwaitPolicy(), func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return nil
		}
	}
	return err
}
