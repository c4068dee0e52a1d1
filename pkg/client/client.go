// Package client is the caller-facing runtime: it sends JSON-RPC calls over a transport,
// correlates their responses, and delivers server-pushed events to subscribers.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/hostrpc/pkg/call"
	"github.com/morezero/hostrpc/pkg/journal"
	"github.com/morezero/hostrpc/pkg/jsonrpc"
	"github.com/morezero/hostrpc/pkg/retry"
	"github.com/morezero/hostrpc/pkg/subscription"
)

const logPrefix = "client:client"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultSweepInterval  = time.Second
)

// ErrClosed is returned by calls made on, or pending in, a closed client.
var ErrClosed = errors.New("client: closed")

// Transport moves encoded frames. Inbound frames are pushed to the handler.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Publish(ctx context.Context, subscriptionID string, data []byte) error
	SetHandler(h func([]byte))
	Close() error
}

// Options configures a Client. Zero values use defaults.
type Options struct {
	// RequestTimeout bounds the wait for each attempt of a call. Default: 30s.
	RequestTimeout time.Duration
	// Policy decides whether a failed attempt is retried. Default: retry.OperationPolicy().
	Policy *retry.Policy
	// InitialDemand is the demand given to subscribers registered through Subscribe.
	InitialDemand int64
	// MaxBacklog caps each subscriber's backlog. Zero is unbounded.
	MaxBacklog int
	// SweepInterval is how often Run expires abandoned calls. Default: 1s.
	SweepInterval time.Duration
	// Journal receives the outcome of every call. Default: journal.NoOpRecorder.
	Journal journal.Recorder
	// NewID generates request ids. Default: random UUIDs.
	NewID func() string
}

// Request is one entry of a batch call.
type Request struct {
	Method string
	Params interface{}
}

// Client is safe for concurrent use.
type Client struct {
	transport Transport
	opts      Options
	tracker   *call.Tracker
	registry  *subscription.Registry
	journal   journal.Recorder

	idle      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a client on top of t and installs itself as t's inbound handler.
func New(t Transport, opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Policy == nil {
		opts.Policy = retry.OperationPolicy()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	rec := opts.Journal
	if rec == nil {
		rec = &journal.NoOpRecorder{}
	}

	c := &Client{
		transport: t,
		opts:      opts,
		tracker:   call.NewTracker(),
		registry:  subscription.NewRegistry(subscription.Options{MaxBacklog: opts.MaxBacklog}),
		journal:   rec,
		idle:      make(chan struct{}, 1),
	}
	c.tracker.OnRemove(c.signalIdle)
	t.SetHandler(func(data []byte) {
		if err := c.Receive(data); err != nil {
			slog.Error(fmt.Sprintf("%s - inbound frame rejected: %v", logPrefix, err))
		}
	})
	return c
}

// Tracker exposes the correlation engine, e.g. for metrics.
func (c *Client) Tracker() *call.Tracker {
	return c.tracker
}

// Registry exposes the subscription registry.
func (c *Client) Registry() *subscription.Registry {
	return c.registry
}

// Run expires abandoned calls and pumps subscriber backlogs until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.tracker.Run(gctx, c.opts.SweepInterval)
	})
	g.Go(func() error {
		return c.registry.Run(gctx)
	})
	return g.Wait()
}

// Call sends one request and waits for its response. Failed attempts are retried under the
// client policy with the same request id; each attempt waits at most RequestTimeout.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*jsonrpc.Response, error) {
	out, err := c.BatchCall(ctx, []Request{{Method: method, Params: params}})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Invoke calls method and decodes the result into out. An error response is returned as
// a *jsonrpc.Error.
func (c *Client) Invoke(ctx context.Context, method string, params interface{}, out interface{}) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	rpcErr, err := resp.RPCError()
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return rpcErr
	}
	if out == nil || !resp.HasResult() {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s - failed to decode %s result: %w", logPrefix, method, err)
	}
	return nil
}

// BatchCall sends reqs as one batch frame and returns the responses in request order.
func (c *Client) BatchCall(ctx context.Context, reqs []Request) ([]*jsonrpc.Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if len(reqs) == 0 {
		return nil, call.ErrEmptyBatch
	}

	wire := make([]*jsonrpc.Request, len(reqs))
	ids := make([]json.RawMessage, len(reqs))
	for i, r := range reqs {
		req, err := jsonrpc.NewRequest(r.Method, r.Params, c.opts.NewID())
		if err != nil {
			return nil, err
		}
		wire[i] = req
		ids[i] = req.ID
	}
	var (
		data []byte
		err  error
	)
	if len(wire) == 1 {
		data, err = jsonrpc.Encode(wire[0])
	} else {
		data, err = jsonrpc.Encode(wire)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode request: %w", logPrefix, err)
	}

	started := time.Now()
	attempts := 0
	out, err := retry.Run(ctx, c.opts.Policy, func(ctx context.Context) ([]*jsonrpc.Response, error) {
		attempts++
		return c.attempt(ctx, ids, data)
	})
	c.record(ctx, wire, out, err, attempts, started)
	return out, err
}

func (c *Client) attempt(ctx context.Context, ids []json.RawMessage, data []byte) ([]*jsonrpc.Response, error) {
	b, err := c.tracker.CreateWithDeadline(time.Now().Add(c.opts.RequestTimeout), ids...)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, data); err != nil {
		b.Cancel(err)
		return nil, err
	}
	actx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	return b.Await(actx)
}

// Go sends one request and returns its handle without waiting. The handle is expired by
// Run once RequestTimeout has passed.
func (c *Client) Go(ctx context.Context, method string, params interface{}) (*call.Call, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	req, err := jsonrpc.NewRequest(method, params, c.opts.NewID())
	if err != nil {
		return nil, err
	}
	data, err := jsonrpc.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode request: %w", logPrefix, err)
	}
	cl, err := c.tracker.CreateCallWithDeadline(time.Now().Add(c.opts.RequestTimeout), req.ID)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, data); err != nil {
		cl.Cancel(err)
		return nil, err
	}
	return cl, nil
}

// Receive decodes an inbound frame and routes responses to their calls and notifications
// to matching subscribers. Malformed frames are returned as errors; the well-formed members
// of a partly malformed batch are still routed first.
func (c *Client) Receive(data []byte) error {
	msgs, err := jsonrpc.Decode(data)
	for _, m := range msgs {
		switch m := m.(type) {
		case *jsonrpc.Response:
			// Duplicates are logged by the tracker and otherwise harmless.
			_ = c.tracker.Deliver(m)
		case *jsonrpc.Notification:
			c.registry.Route(m.Method, m.Params)
		}
	}
	return err
}

// Disconnected cancels in-flight calls with an i/o cause, so the retry policy resends them,
// and purges subscriber backlogs.
func (c *Client) Disconnected(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	n := c.tracker.CancelAll(retry.IO(err))
	c.registry.Clean()
	slog.Warn(fmt.Sprintf("%s - disconnected, cancelled %d pending calls: %v", logPrefix, n, err))
}

// WaitIdle blocks until no call is pending; every call leaving the tracker wakes it. Cancelling
// ctx ends the wait early without error, so callers check Tracker().Pending() afterwards.
func (c *Client) WaitIdle(ctx context.Context) error {
	return retry.Await(ctx, func(ctx context.Context) error {
		if c.tracker.Pending() == 0 {
			return nil
		}
		select {
		case <-c.idle:
			return retry.ErrInterrupted
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (c *Client) signalIdle() {
	select {
	case c.idle <- struct{}{}:
	default:
	}
}

// Subscribe implements subscription.Publisher. Rejections reach sub.OnError.
func (c *Client) Subscribe(sub subscription.Subscriber) {
	_, _ = c.SubscribeWithDemand(sub, c.opts.InitialDemand)
}

// SubscribeWithDemand registers sub with an explicit initial demand.
func (c *Client) SubscribeWithDemand(sub subscription.Subscriber, demand int64) (*subscription.Holder, error) {
	if c.closed.Load() {
		sub.OnError(ErrClosed)
		return nil, ErrClosed
	}
	return c.registry.Subscribe(sub, demand)
}

// Unsubscribe removes a subscription and completes its subscriber.
func (c *Client) Unsubscribe(h *subscription.Holder) {
	c.registry.Unsubscribe(h)
}

// Publish implements subscription.Publisher: it pushes an event addressed to subscriptionID.
func (c *Client) Publish(ctx context.Context, subscriptionID string, payload map[string]interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := jsonrpc.Encode(&jsonrpc.Notification{Method: subscriptionID, Params: payload})
	if err != nil {
		return fmt.Errorf("%w: %v", subscription.ErrSerialization, err)
	}
	return c.transport.Publish(ctx, subscriptionID, data)
}

// Close cancels pending calls, completes subscribers and closes the transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if n := c.tracker.CancelAll(ErrClosed); n > 0 {
			slog.Info(fmt.Sprintf("%s - cancelled %d pending calls on close", logPrefix, n))
		}
		c.registry.Close()
		err = c.transport.Close()
	})
	return err
}

var _ subscription.Publisher = (*Client)(nil)
