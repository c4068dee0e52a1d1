package call

import (
	"context"
	"encoding/json"
	"time"

	"github.com/morezero/hostrpc/pkg/jsonrpc"
)

// Call is a Batch of exactly one request.
type Call struct {
	*Batch
}

// ID returns the request id.
func (c *Call) ID() json.RawMessage {
	return c.ids[0]
}

// Await blocks like Batch.Await and returns the single response.
func (c *Call) Await(ctx context.Context) (*jsonrpc.Response, error) {
	return unwrap(c.Batch.Await(ctx))
}

// AwaitTimeout blocks like Batch.AwaitTimeout and returns the single response.
func (c *Call) AwaitTimeout(d time.Duration) (*jsonrpc.Response, error) {
	return unwrap(c.Batch.AwaitTimeout(d))
}

func unwrap(out []*jsonrpc.Response, err error) (*jsonrpc.Response, error) {
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
