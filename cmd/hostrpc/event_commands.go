package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/morezero/hostrpc/internal/session"
	"github.com/morezero/hostrpc/pkg/subscription"
)

type eventLine struct {
	Topic  string                 `json:"topic"`
	Params map[string]interface{} `json:"params"`
}

// eventPrinter writes events as JSON and keeps the subscriber's demand window full until
// limit events were printed. A zero limit prints until the watch ends.
type eventPrinter struct {
	mu     sync.Mutex
	cmd    *cobra.Command
	limit  int
	seen   int
	handle subscription.Subscription
	done   chan struct{}
	errs   chan error
}

func newEventPrinter(cmd *cobra.Command, limit int) *eventPrinter {
	return &eventPrinter{cmd: cmd, limit: limit, done: make(chan struct{}), errs: make(chan error, 1)}
}

func (p *eventPrinter) subscriber(id string) *subscription.CallbackSubscriber {
	return &subscription.CallbackSubscriber{
		ID: id,
		Subscribed: func(s subscription.Subscription) {
			p.mu.Lock()
			p.handle = s
			p.mu.Unlock()
		},
		Next: p.onNext,
		Err: func(err error) {
			select {
			case p.errs <- err:
			default:
			}
		},
	}
}

func (p *eventPrinter) onNext(ev subscription.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && p.seen >= p.limit {
		return
	}
	if err := writeJSON(p.cmd, eventLine{Topic: ev.Topic, Params: ev.Params}); err != nil {
		select {
		case p.errs <- err:
		default:
		}
		return
	}
	p.seen++
	if p.limit > 0 && p.seen == p.limit {
		close(p.done)
		return
	}
	if p.handle != nil {
		p.handle.Request(1)
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var demand int64
	var count int
	cmd := &cobra.Command{
		Use:   "watch <subscription-id>",
		Short: "Print events matching a subscription id such as ui.*.save.*",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if demand <= 0 {
				return fmt.Errorf("--demand must be positive")
			}
			id, err := subscription.ParseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(c context.Context, s *session.Session) error {
				printer := newEventPrinter(cmd, count)
				h, err := s.Client().SubscribeWithDemand(printer.subscriber(id.String()), demand)
				if err != nil {
					return err
				}
				defer s.Client().Unsubscribe(h)

				select {
				case <-c.Done():
					return nil
				case <-printer.done:
					return nil
				case err := <-printer.errs:
					return err
				}
			})
		},
	}
	cmd.Flags().Int64Var(&demand, "demand", 16, "Events the watcher accepts ahead of printing")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 = until interrupted)")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <subscription-id> [payload-json]",
		Short: "Publish an event addressed to a subscription id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := subscription.ParseID(args[0]); err != nil {
				return err
			}
			var raw string
			if len(args) > 1 {
				raw = args[1]
			}
			payload, err := parsePayload(raw)
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(c context.Context, s *session.Session) error {
				return s.Client().Publish(c, args[0], payload)
			})
		},
	}
}
