package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/hostrpc/pkg/jsonrpc"
)

const logPrefix = "call:tracker"

// Tracker indexes open batches by request id.
type Tracker struct {
	mu       sync.Mutex
	batches  map[string]*Batch
	onRemove func()
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{batches: make(map[string]*Batch)}
}

// OnRemove installs fn to run each time a batch leaves the tracker, whatever its outcome.
// fn runs with the batch lock held and must not block or call back into the batch.
func (t *Tracker) OnRemove(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemove = fn
}

// Create registers a batch awaiting exactly ids.
func (t *Tracker) Create(ids ...json.RawMessage) (*Batch, error) {
	return t.CreateWithDeadline(time.Time{}, ids...)
}

// CreateCall registers a single-request batch.
func (t *Tracker) CreateCall(id json.RawMessage) (*Call, error) {
	b, err := t.Create(id)
	if err != nil {
		return nil, err
	}
	return &Call{Batch: b}, nil
}

// CreateCallWithDeadline registers a single-request batch swept by Expire after deadline.
func (t *Tracker) CreateCallWithDeadline(deadline time.Time, id json.RawMessage) (*Call, error) {
	b, err := t.CreateWithDeadline(deadline, id)
	if err != nil {
		return nil, err
	}
	return &Call{Batch: b}, nil
}

// CreateWithDeadline registers a batch that Expire times out once deadline has passed.
// A zero deadline is never swept.
func (t *Tracker) CreateWithDeadline(deadline time.Time, ids ...json.RawMessage) (*Batch, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	keys := make([]string, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		k := jsonrpc.IDKey(id)
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %s repeated in batch", ErrIDInUse, k)
		}
		seen[k] = struct{}{}
		keys[i] = k
	}

	owned := make([]json.RawMessage, len(ids))
	copy(owned, ids)
	b := newBatch(t, owned, keys, deadline)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		if _, busy := t.batches[k]; busy {
			return nil, fmt.Errorf("%w: %s", ErrIDInUse, k)
		}
	}
	for _, k := range keys {
		t.batches[k] = b
	}
	return b, nil
}

// Deliver routes resp to the batch awaiting its id. Responses for unknown ids and null ids
// are logged and dropped. A second response for an already filled id returns
// ErrDuplicateResponse and leaves the batch untouched.
func (t *Tracker) Deliver(resp *jsonrpc.Response) error {
	if resp.IsNullID() {
		slog.Warn(fmt.Sprintf("%s - dropping response with null id (error=%s)", logPrefix, string(resp.Error)))
		return nil
	}
	key := resp.Key()

	t.mu.Lock()
	b := t.batches[key]
	t.mu.Unlock()
	if b == nil {
		slog.Debug(fmt.Sprintf("%s - no open call for id %s, dropping response", logPrefix, key))
		return nil
	}

	complete, err := b.fill(key, resp)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
		return err
	}
	if complete {
		slog.Debug(fmt.Sprintf("%s - batch for %s complete", logPrefix, key))
	}
	return nil
}

// Pending returns the number of open batches.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[*Batch]struct{}, len(t.batches))
	for _, b := range t.batches {
		seen[b] = struct{}{}
	}
	return len(seen)
}

// Expire times out every batch whose deadline is before now and returns how many it expired.
func (t *Tracker) Expire(now time.Time) int {
	var expired []*Batch
	for _, b := range t.snapshot() {
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			expired = append(expired, b)
		}
	}
	n := 0
	for _, b := range expired {
		if b.finish(TimedOut, context.DeadlineExceeded) {
			n++
		}
	}
	if n > 0 {
		slog.Info(fmt.Sprintf("%s - expired %d calls", logPrefix, n))
	}
	return n
}

// CancelAll cancels every open batch with cause.
func (t *Tracker) CancelAll(cause error) int {
	n := 0
	for _, b := range t.snapshot() {
		if b.Cancel(cause) {
			n++
		}
	}
	return n
}

// Run calls Expire every interval until ctx ends.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t.Expire(now)
		}
	}
}

func (t *Tracker) snapshot() []*Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[*Batch]struct{}, len(t.batches))
	out := make([]*Batch, 0, len(t.batches))
	for _, b := range t.batches {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

func (t *Tracker) remove(b *Batch) {
	t.mu.Lock()
	removed := false
	for _, k := range b.keys {
		if t.batches[k] == b {
			delete(t.batches, k)
			removed = true
		}
	}
	hook := t.onRemove
	t.mu.Unlock()
	if removed && hook != nil {
		hook()
	}
}
