package retry

import (
	"errors"
	"fmt"
)

// Error kinds understood by the default policies.
var (
	// ErrIO marks input/output class failures (connection refused, reset, EOF, timeouts on the wire).
	ErrIO = errors.New("retry: i/o failure")

	// ErrInterrupted marks a spurious wake-up of a cooperative wait.
	ErrInterrupted = errors.New("retry: interrupted")

	// ErrExhausted is matched by every *ExhaustedError.
	ErrExhausted = errors.New("retry: attempts exhausted")
)

// ExhaustedError carries the last real failure of a sequence that ran out of attempts.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last failure so errors.Is/As see the real cause.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports true for ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// IO wraps err so that it matches ErrIO. A nil err stays nil.
func IO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
