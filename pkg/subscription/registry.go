package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "subscription:registry"

// Options configures a Registry.
type Options struct {
	// MaxBacklog caps each holder's backlog; the oldest event is dropped on overflow.
	// Zero keeps the backlog unbounded.
	MaxBacklog int
}

// Registry routes events to every holder whose id matches the event topic. Holders are
// independent: each has its own lock, and the registry lock only guards membership.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	holders map[*Holder]struct{}

	wake chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxBacklog < 0 {
		opts.MaxBacklog = 0
	}
	return &Registry{
		opts:    opts,
		holders: make(map[*Holder]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Subscribe registers sub with the given initial demand. An invalid subscription id is
// reported to sub.OnError and returned.
func (r *Registry) Subscribe(sub Subscriber, initialDemand int64) (*Holder, error) {
	id, err := ParseID(sub.SubscriptionID())
	if err != nil {
		sub.OnError(err)
		return nil, err
	}
	h := newHolder(r, id, sub, initialDemand, r.opts.MaxBacklog)

	r.mu.Lock()
	r.holders[h] = struct{}{}
	r.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - subscribed %s (demand %d)", logPrefix, id, initialDemand))
	sub.OnSubscribe(h)
	return h, nil
}

// Len returns the number of live holders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.holders)
}

// Route delivers an event addressed to topic to every matching holder, either directly or
// through the holder's backlog. It returns the number of matching holders.
func (r *Registry) Route(topic string, params map[string]interface{}) int {
	tid, err := ParseID(topic)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping event: %v", logPrefix, err))
		return 0
	}
	ev := Event{Topic: topic, Params: params}

	matched := 0
	pending := false
	for _, h := range r.snapshot() {
		if !h.id.Matches(tid) {
			continue
		}
		matched++
		if h.route(ev) {
			pending = true
		}
	}
	if pending {
		r.notify()
	}
	if matched == 0 {
		slog.Debug(fmt.Sprintf("%s - no subscriber for %s", logPrefix, topic))
	}
	return matched
}

// Pump drains every holder that has both demand and queued events and returns the number
// of events delivered. A holder's deliveries never overlap with each other or with Route.
func (r *Registry) Pump() int {
	n := 0
	for _, h := range r.snapshot() {
		n += h.pump()
	}
	return n
}

// Run pumps whenever a subscriber requests more events, until ctx ends.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.wake:
			r.Pump()
		}
	}
}

// Unsubscribe removes h, purges its backlog and completes its subscriber.
func (r *Registry) Unsubscribe(h *Holder) {
	r.mu.Lock()
	_, ok := r.holders[h]
	delete(r.holders, h)
	r.mu.Unlock()

	if h.close() && ok {
		slog.Debug(fmt.Sprintf("%s - unsubscribed %s", logPrefix, h.id))
		h.subscriber.OnComplete()
	}
}

// Clean purges every backlog, e.g. after the connection dropped.
func (r *Registry) Clean() {
	for _, h := range r.snapshot() {
		h.Clean()
	}
}

// Fail reports err to every subscriber without removing them.
func (r *Registry) Fail(err error) {
	for _, h := range r.snapshot() {
		h.subscriber.OnError(err)
	}
}

// Close unsubscribes every holder.
func (r *Registry) Close() {
	for _, h := range r.snapshot() {
		r.Unsubscribe(h)
	}
}

func (r *Registry) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Registry) snapshot() []*Holder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Holder, 0, len(r.holders))
	for h := range r.holders {
		out = append(out, h)
	}
	return out
}
