package call

import (
	"errors"
	"fmt"
)

// Sentinel errors of the correlation engine.
var (
	ErrEmptyBatch        = errors.New("call: batch needs at least one id")
	ErrIDInUse           = errors.New("call: id already awaited")
	ErrDuplicateResponse = errors.New("call: duplicate response")
	ErrTimeout           = errors.New("call: timed out waiting for response")
	ErrCancelled         = errors.New("call: cancelled")
)

// CancelledError is returned by Await on a cancelled batch. It matches ErrCancelled and
// unwraps to the cancellation cause.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled, e.Cause)
}

// Unwrap returns the cancellation cause.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is reports true for ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}
