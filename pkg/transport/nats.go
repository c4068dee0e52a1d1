// Package transport moves encoded JSON-RPC frames over COMMS (NATS).
//
// Requests are published on the request subject with the transport's private inbox as the
// reply subject; the daemon answers on that inbox. Events are published on subjects under the
// event prefix, partitioned by receiver. Every inbound frame, response or event, is handed to
// the installed handler unparsed.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hostrpc/pkg/commsutil"
)

const logPrefix = "transport:nats"

// Options configures a NATS transport. Empty fields use the commsutil defaults.
type Options struct {
	RequestSubject string
	EventPrefix    string
}

// NATS is a transport over an established COMMS connection. The connection stays owned by
// the caller; Close only releases the transport's subscriptions.
type NATS struct {
	nc             *comms.Conn
	requestSubject string
	eventPrefix    string
	inbox          string

	mu      sync.RWMutex
	handler func([]byte)
	subs    []*comms.Subscription
	closed  bool
}

// NewNATS subscribes to the reply inbox and the event subjects.
func NewNATS(nc *comms.Conn, opts Options) (*NATS, error) {
	if opts.RequestSubject == "" {
		opts.RequestSubject = commsutil.SubjectRequests
	}
	if opts.EventPrefix == "" {
		opts.EventPrefix = commsutil.SubjectEvents
	}
	t := &NATS{
		nc:             nc,
		requestSubject: opts.RequestSubject,
		eventPrefix:    opts.EventPrefix,
		inbox:          comms.NewInbox(),
	}

	subjects := append([]string{t.inbox}, commsutil.EventSubjects(t.eventPrefix)...)
	for _, subject := range subjects {
		sub, err := nc.Subscribe(subject, t.onMsg)
		if err != nil {
			t.unsubscribeAll()
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
		}
		t.subs = append(t.subs, sub)
	}
	if err := nc.Flush(); err != nil {
		t.unsubscribeAll()
		return nil, fmt.Errorf("%s - failed to flush subscriptions: %w", logPrefix, commsutil.Classify(err))
	}

	slog.Info(fmt.Sprintf("%s - Listening on %s and %s.>", logPrefix, t.inbox, t.eventPrefix))
	return t, nil
}

// Inbox returns the reply subject responses arrive on.
func (t *NATS) Inbox() string {
	return t.inbox
}

// SetHandler installs the callback receiving every inbound frame.
func (t *NATS) SetHandler(h func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Send publishes an encoded request or batch. Connection-level failures match retry.ErrIO.
func (t *NATS) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.isClosed() {
		return commsutil.Classify(comms.ErrConnectionClosed)
	}
	msg := &comms.Msg{Subject: t.requestSubject, Reply: t.inbox, Data: data}
	if err := t.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, t.requestSubject, commsutil.Classify(err))
	}
	return nil
}

// Publish sends an encoded event addressed to subscriptionID.
func (t *NATS) Publish(ctx context.Context, subscriptionID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.isClosed() {
		return commsutil.Classify(comms.ErrConnectionClosed)
	}
	subject := commsutil.BuildEventSubject(t.eventPrefix, subscriptionID)
	if err := t.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", logPrefix, subject, err))
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, subject, commsutil.Classify(err))
	}
	slog.Debug(fmt.Sprintf("%s - Published event for %s on %s", logPrefix, subscriptionID, subject))
	return nil
}

// Close releases the transport's subscriptions. It is idempotent.
func (t *NATS) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.handler = nil
	t.mu.Unlock()
	t.unsubscribeAll()
	return nil
}

func (t *NATS) onMsg(msg *comms.Msg) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		slog.Debug(fmt.Sprintf("%s - no handler, dropping frame on %s", logPrefix, msg.Subject))
		return
	}
	h(msg.Data)
}

func (t *NATS) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *NATS) unsubscribeAll() {
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	t.subs = nil
}
