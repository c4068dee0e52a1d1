package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/hostrpc/pkg/call"
	"github.com/morezero/hostrpc/pkg/journal"
	"github.com/morezero/hostrpc/pkg/jsonrpc"
)

// record reports the outcome of every request of a finished call to the journal.
func (c *Client) record(ctx context.Context, reqs []*jsonrpc.Request, out []*jsonrpc.Response, callErr error, attempts int, started time.Time) {
	elapsed := time.Since(started)
	for i, req := range reqs {
		entry := &journal.Entry{
			RequestID: requestID(req.ID),
			Method:    req.Method,
			Attempts:  attempts,
			StartedAt: started,
			Duration:  elapsed,
		}
		switch {
		case callErr != nil:
			entry.Status = statusOf(callErr)
			entry.Error = callErr.Error()
		case i < len(out) && out[i].HasError():
			entry.Status = journal.StatusError
			entry.Error = string(out[i].Error)
		default:
			entry.Status = journal.StatusOK
		}
		// The caller's context may already be done; the journal write must not depend on it.
		if err := c.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
			slog.Warn(fmt.Sprintf("%s - journal record failed for %s: %v", logPrefix, entry.RequestID, err))
		}
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, call.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return journal.StatusTimeout
	case errors.Is(err, call.ErrCancelled), errors.Is(err, context.Canceled):
		return journal.StatusCancelled
	default:
		return journal.StatusFailed
	}
}

// requestID renders a JSON id for the journal: strings without their quotes, numbers as written.
func requestID(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}
