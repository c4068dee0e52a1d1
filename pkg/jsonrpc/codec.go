package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message is one decoded inbound message: either a *Response or a *Notification.
type Message interface {
	isMessage()
}

func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// Encode serialises a request, a batch of requests, a notification or a response.
func Encode(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case []*Request:
		if len(m) == 0 {
			return nil, fmt.Errorf("jsonrpc: empty batch")
		}
		return json.Marshal(m)
	default:
		return json.Marshal(m)
	}
}

// Decode splits an inbound frame into messages. A frame is a single object or a batch array.
// An object carrying a method and no id is a notification, any other object is validated as
// a response. Server-initiated requests are not supported and count as malformed.
//
// Batch members are decoded independently: the well-formed ones are returned alongside an
// error joining one ErrMalformedResponse per bad member, so callers can still route them.
func Decode(data []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedResponse)
	}
	if trimmed[0] != '[' {
		m, err := decodeOne(trimmed)
		if err != nil {
			return nil, err
		}
		return []Message{m}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMalformedResponse)
	}
	out := make([]Message, 0, len(items))
	var errs []error
	for i, item := range items {
		m, err := decodeOne(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch member %d: %w", i, err))
			continue
		}
		out = append(out, m)
	}
	return out, errors.Join(errs...)
}

func decodeOne(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	_, hasMethod := fields["method"]
	_, hasID := fields["id"]
	if hasMethod && hasID {
		return nil, fmt.Errorf("%w: unexpected request from server", ErrMalformedResponse)
	}
	if hasMethod {
		var n Notification
		if err := n.fromFields(fields); err != nil {
			return nil, err
		}
		return &n, nil
	}
	var r Response
	if err := r.fromFields(fields); err != nil {
		return nil, err
	}
	return &r, nil
}
