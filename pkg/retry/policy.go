package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Unbounded disables the attempt limit of a Policy.
const Unbounded = -1

// Policy is the immutable rule set of a retry sequence.
type Policy struct {
	attempts int
	wait     int64
	unit     time.Duration
	kinds    []error
	onRetry  func(attempt int, err error, wait time.Duration)
}

// NewPolicy creates a policy allowing attempts retries, waiting wait units between tries and
// retrying only failures matching one of kinds. A negative attempts value means Unbounded.
func NewPolicy(attempts int, wait int64, unit time.Duration, kinds ...error) *Policy {
	if attempts < 0 {
		attempts = Unbounded
	}
	if wait < 0 {
		wait = 0
	}
	if unit <= 0 {
		unit = time.Millisecond
	}
	k := make([]error, len(kinds))
	copy(k, kinds)
	return &Policy{attempts: attempts, wait: wait, unit: unit, kinds: k}
}

// Attempts returns the retry budget, or Unbounded.
func (p *Policy) Attempts() int {
	return p.attempts
}

// Wait returns the suspension between two tries.
func (p *Policy) Wait() time.Duration {
	return time.Duration(p.wait) * p.unit
}

// Unit returns the time unit the wait is expressed in.
func (p *Policy) Unit() time.Duration {
	return p.unit
}

// Kinds returns a copy of the retryable error kinds.
func (p *Policy) Kinds() []error {
	out := make([]error, len(p.kinds))
	copy(out, p.kinds)
	return out
}

// WithOnRetry returns a copy of p whose hook is called before each suspension.
func (p *Policy) WithOnRetry(fn func(attempt int, err error, wait time.Duration)) *Policy {
	cp := *p
	cp.onRetry = fn
	return &cp
}

// matches reports whether err belongs to one of the policy's kinds.
func (p *Policy) matches(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range p.kinds {
		if errors.Is(err, kind) {
			return true
		}
		if kind == ErrIO && isIOClass(err) {
			return true
		}
	}
	return false
}

func isIOClass(err error) bool {
	// context.DeadlineExceeded satisfies net.Error but is the caller giving up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
