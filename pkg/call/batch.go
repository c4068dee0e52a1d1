// Package call correlates asynchronous JSON-RPC responses with the requests awaiting them.
//
// A Tracker owns every open Batch. The transport side feeds decoded responses to
// Tracker.Deliver; callers block on Batch.Await until all ids are answered, the batch is
// cancelled or the wait times out.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/morezero/hostrpc/pkg/jsonrpc"
)

// State is the lifecycle position of a batch.
type State int

const (
	Pending State = iota
	Done
	Cancelled
	TimedOut
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Batch awaits responses for a fixed set of request ids.
type Batch struct {
	tracker  *Tracker
	ids      []json.RawMessage
	keys     []string
	deadline time.Time

	mu         sync.Mutex
	slots      map[string]*jsonrpc.Response
	filled     int
	duplicates int
	state      State
	cause      error
	done       chan struct{}
}

func newBatch(t *Tracker, ids []json.RawMessage, keys []string, deadline time.Time) *Batch {
	slots := make(map[string]*jsonrpc.Response, len(keys))
	for _, k := range keys {
		slots[k] = nil
	}
	return &Batch{
		tracker:  t,
		ids:      ids,
		keys:     keys,
		deadline: deadline,
		slots:    slots,
		done:     make(chan struct{}),
	}
}

// IDs returns the request ids in creation order.
func (b *Batch) IDs() []json.RawMessage {
	out := make([]json.RawMessage, len(b.ids))
	copy(out, b.ids)
	return out
}

// Deadline returns the sweep deadline, or the zero time.
func (b *Batch) Deadline() time.Time {
	return b.deadline
}

// State returns the current lifecycle state.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Duplicates returns how many duplicate responses were rejected.
func (b *Batch) Duplicates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duplicates
}

// Done is closed once the batch reaches a terminal state.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// fill stores resp in its slot and reports whether the batch just completed. Lock order is
// always Batch.mu before Tracker.mu.
func (b *Batch) fill(key string, resp *jsonrpc.Response) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Pending {
		return false, nil
	}
	current, ok := b.slots[key]
	if !ok {
		return false, nil
	}
	if current != nil {
		b.duplicates++
		return false, fmt.Errorf("%w for id %s", ErrDuplicateResponse, key)
	}
	b.slots[key] = resp
	b.filled++
	if b.filled < len(b.keys) {
		return false, nil
	}
	b.state = Done
	b.tracker.remove(b)
	close(b.done)
	return true, nil
}

// finish moves a pending batch into a terminal state.
func (b *Batch) finish(state State, cause error) bool {
	b.mu.Lock()
	if b.state != Pending {
		b.mu.Unlock()
		return false
	}
	b.state = state
	b.cause = cause
	// Leave the tracker before waking waiters, so a returning Await never sees its own id busy.
	b.tracker.remove(b)
	close(b.done)
	b.mu.Unlock()
	return true
}

// Cancel stops the batch. It returns false if the batch was already done, cancelled or
// timed out. Blocked Await calls return a *CancelledError carrying cause.
func (b *Batch) Cancel(cause error) bool {
	return b.finish(Cancelled, cause)
}

// Await blocks until every response arrived, the batch is cancelled or ctx ends. A context
// deadline times the batch out; a cancelled context cancels it. Responses are returned in
// the order the ids were given at creation.
func (b *Batch) Await(ctx context.Context) ([]*jsonrpc.Response, error) {
	select {
	case <-b.done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.finish(TimedOut, ctx.Err())
		} else {
			b.finish(Cancelled, ctx.Err())
		}
	}
	return b.result()
}

// AwaitTimeout is Await bounded by d. A non-positive d waits indefinitely.
func (b *Batch) AwaitTimeout(d time.Duration) ([]*jsonrpc.Response, error) {
	if d <= 0 {
		return b.Await(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return b.Await(ctx)
}

func (b *Batch) result() ([]*jsonrpc.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Done:
		out := make([]*jsonrpc.Response, len(b.keys))
		for i, k := range b.keys {
			out[i] = b.slots[k]
		}
		return out, nil
	case Cancelled:
		return nil, &CancelledError{Cause: b.cause}
	case TimedOut:
		return nil, fmt.Errorf("%w (%d of %d responses)", ErrTimeout, b.filled, len(b.keys))
	default:
		return nil, fmt.Errorf("call: await returned in state %s", b.state)
	}
}
