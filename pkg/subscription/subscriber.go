package subscription

import (
	"context"
	"errors"
)

// ErrSerialization is returned by Publish when a payload cannot be encoded.
var ErrSerialization = errors.New("subscription: payload serialization failed")

// Event is one pushed event. Params is shared between all matching subscribers and must be
// treated as read-only.
type Event struct {
	Topic  string
	Params map[string]interface{}
}

// Subscription is the subscriber's handle on its flow control.
type Subscription interface {
	// Request signals readiness for n more events.
	Request(n int64)
	// Cancel ends the subscription.
	Cancel()
}

// Subscriber receives events for the subscription id it reports.
type Subscriber interface {
	SubscriptionID() string
	OnSubscribe(s Subscription)
	OnNext(ev Event)
	OnError(err error)
	OnComplete()
}

// Publisher lets application code subscribe to events and push events to a subscription id.
// A rejected subscription is reported through the subscriber's OnError.
type Publisher interface {
	Subscribe(sub Subscriber)
	Publish(ctx context.Context, subscriptionID string, payload map[string]interface{}) error
}

// CallbackSubscriber adapts plain functions to Subscriber. Nil callbacks are skipped.
type CallbackSubscriber struct {
	ID         string
	Next       func(ev Event)
	Subscribed func(s Subscription)
	Err        func(err error)
	Complete   func()
}

// SubscriptionID returns the configured id.
func (c *CallbackSubscriber) SubscriptionID() string { return c.ID }

// OnSubscribe calls Subscribed.
func (c *CallbackSubscriber) OnSubscribe(s Subscription) {
	if c.Subscribed != nil {
		c.Subscribed(s)
	}
}

// OnNext calls Next.
func (c *CallbackSubscriber) OnNext(ev Event) {
	if c.Next != nil {
		c.Next(ev)
	}
}

// OnError calls Err.
func (c *CallbackSubscriber) OnError(err error) {
	if c.Err != nil {
		c.Err(err)
	}
}

// OnComplete calls Complete.
func (c *CallbackSubscriber) OnComplete() {
	if c.Complete != nil {
		c.Complete()
	}
}
