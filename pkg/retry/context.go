package retry

import "time"

// Context is the mutable state of one retry sequence. It is not safe for concurrent use;
// each sequence owns its own Context.
type Context struct {
	policy    *Policy
	remaining int
	wait      time.Duration
	tries     int
}

// NewContext starts a retry sequence for p.
func NewContext(p *Policy) *Context {
	return &Context{
		policy:    p,
		remaining: p.attempts,
		wait:      p.Wait(),
	}
}

// Policy returns the policy the context was created from.
func (c *Context) Policy() *Policy {
	return c.policy
}

// Remaining returns the retries left, or Unbounded.
func (c *Context) Remaining() int {
	return c.remaining
}

// Wait returns the active suspension between tries.
func (c *Context) Wait() time.Duration {
	return c.wait
}

// Tries returns how many times the unit of work has failed so far.
func (c *Context) Tries() int {
	return c.tries
}

// Exhausted reports whether no retries are left.
func (c *Context) Exhausted() bool {
	return c.remaining != Unbounded && c.remaining <= 0
}

// DecreaseAttempts consumes one retry. It is a no-op for unbounded sequences.
func (c *Context) DecreaseAttempts() {
	if c.remaining == Unbounded || c.remaining <= 0 {
		return
	}
	c.remaining--
}

// IsRetryable reports whether err is one of the policy's retryable kinds.
func (c *Context) IsRetryable(err error) bool {
	return c.policy.matches(err)
}
