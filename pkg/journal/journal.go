// Package journal records the outcome of every call made through the client.
package journal

import (
	"context"
	"time"
)

// Call outcome statuses.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Entry is one journaled call.
type Entry struct {
	RequestID string
	Method    string
	Status    string
	Error     string
	Attempts  int
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder is the interface for journaling call outcomes.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// NoOpRecorder is a Recorder that does nothing (the default when no journal is configured).
type NoOpRecorder struct{}

// Record is a no-op.
func (r *NoOpRecorder) Record(_ context.Context, _ *Entry) error {
	return nil
}

// CallbackRecorder is a Recorder that calls a callback function (for testing).
type CallbackRecorder struct {
	callback func(ctx context.Context, entry *Entry) error
}

// NewCallbackRecorder creates a new CallbackRecorder.
func NewCallbackRecorder(cb func(ctx context.Context, entry *Entry) error) *CallbackRecorder {
	return &CallbackRecorder{callback: cb}
}

// Record calls the callback.
func (r *CallbackRecorder) Record(ctx context.Context, entry *Entry) error {
	return r.callback(ctx, entry)
}
