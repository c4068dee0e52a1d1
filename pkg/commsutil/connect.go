// Package commsutil provides COMMS (NATS) connection helpers and subject builders.
package commsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hostrpc/pkg/retry"
)

const logPrefix = "commsutil:connect"

// ConnectOptions tunes Connect. Zero values use defaults.
type ConnectOptions struct {
	// Policy governs retries of the initial connection. Default: retry.ConnectionPolicy().
	Policy *retry.Policy
	// Timeout bounds each dial. Default: 10s.
	Timeout time.Duration
	// OnDisconnect and OnReconnect observe the connection after it is up.
	OnDisconnect func(err error)
	OnReconnect  func()
}

// Connect creates a COMMS connection to the given URL. Failures of the i/o class are
// retried under the connection policy; the last real failure is returned once it gives up.
func Connect(ctx context.Context, url, name string, opts *ConnectOptions) (*comms.Conn, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}
	policy := opts.Policy
	if policy == nil {
		policy = retry.ConnectionPolicy()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy = policy.WithOnRetry(func(attempt int, err error, wait time.Duration) {
		slog.Warn(fmt.Sprintf("%s - connect attempt %d to %s failed, retrying in %s: %v", logPrefix, attempt, url, wait, err))
	})

	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	nc, err := retry.Run(ctx, policy, func(context.Context) (*comms.Conn, error) {
		nc, err := comms.Connect(url,
			comms.Name(name),
			comms.Timeout(timeout),
			comms.ReconnectWait(2*time.Second),
			comms.MaxReconnects(60),
			comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
				slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
				if opts.OnDisconnect != nil {
					opts.OnDisconnect(err)
				}
			}),
			comms.ReconnectHandler(func(nc *comms.Conn) {
				slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
				if opts.OnReconnect != nil {
					opts.OnReconnect()
				}
			}),
			comms.ClosedHandler(func(nc *comms.Conn) {
				slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
			}),
		)
		return nc, Classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}

// Classify marks COMMS connection-level failures as retry.ErrIO so retry policies treat
// them as the i/o class. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, comms.ErrNoServers),
		errors.Is(err, comms.ErrTimeout),
		errors.Is(err, comms.ErrConnectionClosed),
		errors.Is(err, comms.ErrConnectionDraining),
		errors.Is(err, comms.ErrConnectionReconnecting),
		errors.Is(err, comms.ErrStaleConnection),
		errors.Is(err, comms.ErrDisconnected):
		return retry.IO(err)
	}
	return err
}
