package subscription

import (
	"sync"
	"sync/atomic"
)

// Holder binds a subscriber to its demand counter and its backlog of events that arrived
// while demand was exhausted. The backlog only grows while demand is zero or less and is
// drained oldest first.
type Holder struct {
	id         ID
	subscriber Subscriber
	registry   *Registry
	maxBacklog int

	demand  atomic.Int64
	dropped atomic.Int64

	// delivering serializes OnNext calls, so the subscriber sees one event at a time and
	// in arrival order. Taken before mu.
	delivering sync.Mutex

	mu      sync.Mutex
	backlog []Event
	closed  bool
}

func newHolder(r *Registry, id ID, sub Subscriber, initialDemand int64, maxBacklog int) *Holder {
	h := &Holder{id: id, subscriber: sub, registry: r, maxBacklog: maxBacklog}
	h.demand.Store(initialDemand)
	return h
}

// ID returns the parsed subscription id.
func (h *Holder) ID() ID { return h.id }

// Subscriber returns the bound subscriber.
func (h *Holder) Subscriber() Subscriber { return h.subscriber }

// Demand returns the outstanding demand.
func (h *Holder) Demand() int64 { return h.demand.Load() }

// Dropped returns how many events were discarded because the backlog was full.
func (h *Holder) Dropped() int64 { return h.dropped.Load() }

// Backlog returns the number of queued events.
func (h *Holder) Backlog() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.backlog)
}

// CanProcess reports whether the subscriber currently wants events.
func (h *Holder) CanProcess() bool {
	return h.demand.Load() > 0
}

// RequestMore adds n to the demand. It is safe to call concurrently with delivery.
func (h *Holder) RequestMore(n int64) {
	if n <= 0 {
		return
	}
	h.demand.Add(n)
}

// Request implements Subscription: it adds demand and wakes the registry pump.
func (h *Holder) Request(n int64) {
	h.RequestMore(n)
	if h.registry != nil {
		h.registry.notify()
	}
}

// Cancel implements Subscription.
func (h *Holder) Cancel() {
	if h.registry != nil {
		h.registry.Unsubscribe(h)
		return
	}
	h.Clean()
}

// offer accepts a routed event. It returns the event for immediate delivery when demand
// allows and nothing is queued ahead of it; otherwise the event is queued. pending reports
// that queued events can be drained right away.
func (h *Holder) offer(ev Event) (deliver bool, pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, false
	}
	if len(h.backlog) == 0 && h.demand.Load() > 0 {
		h.demand.Add(-1)
		return true, false
	}
	if h.maxBacklog > 0 && len(h.backlog) >= h.maxBacklog {
		h.backlog[0] = Event{}
		h.backlog = h.backlog[1:]
		h.dropped.Add(1)
	}
	h.backlog = append(h.backlog, ev)
	return false, h.demand.Load() > 0
}

// Drain pops the oldest queued event if the backlog is non-empty and demand is positive,
// consuming one unit of demand. Otherwise it returns false without side effects.
func (h *Holder) Drain() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.backlog) == 0 || h.demand.Load() <= 0 {
		return Event{}, false
	}
	h.demand.Add(-1)
	ev := h.backlog[0]
	h.backlog[0] = Event{}
	h.backlog = h.backlog[1:]
	if len(h.backlog) == 0 {
		h.backlog = nil
	}
	return ev, true
}

// route offers ev and hands it to the subscriber if it was not queued.
func (h *Holder) route(ev Event) (pending bool) {
	h.delivering.Lock()
	defer h.delivering.Unlock()
	deliver, pending := h.offer(ev)
	if deliver {
		h.subscriber.OnNext(ev)
	}
	return pending
}

// pump delivers queued events while demand lasts and returns how many were delivered.
func (h *Holder) pump() int {
	h.delivering.Lock()
	defer h.delivering.Unlock()
	n := 0
	for {
		ev, ok := h.Drain()
		if !ok {
			return n
		}
		h.subscriber.OnNext(ev)
		n++
	}
}

// Clean purges the backlog.
func (h *Holder) Clean() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backlog = nil
}

// close purges the backlog and rejects further events. It reports whether the holder was open.
func (h *Holder) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	h.backlog = nil
	return true
}
