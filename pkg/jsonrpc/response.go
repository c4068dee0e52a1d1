// Package jsonrpc models the JSON-RPC 2.0 envelopes exchanged with the host daemon and
// splits inbound frames into responses and notifications.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol marker accepted on decode and written on encode.
const Version = "2.0"

var nullID = json.RawMessage("null")

// Response is a single decoded response. Result and Error are kept as raw JSON; the core
// never interprets them. A nil slice means the member was absent on the wire.
type Response struct {
	ID     json.RawMessage
	Result json.RawMessage
	Error  json.RawMessage
}

// NewResult builds a successful response.
func NewResult(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{ID: normalizeID(id), Result: result}
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Response {
	data, _ := json.Marshal(rpcErr)
	return &Response{ID: normalizeID(id), Error: data}
}

// HasResult reports whether the result member was present.
func (r *Response) HasResult() bool {
	return r.Result != nil
}

// HasError reports whether the error member was present.
func (r *Response) HasError() bool {
	return r.Error != nil
}

// IsNullID reports whether the server could not identify the request.
func (r *Response) IsNullID() bool {
	return bytes.Equal(bytes.TrimSpace(r.ID), nullID)
}

// Key returns the canonical form of the response id.
func (r *Response) Key() string {
	return IDKey(r.ID)
}

// RPCError decodes the error member. It returns (nil, nil) when no error is present.
func (r *Response) RPCError() (*Error, error) {
	if !r.HasError() || bytes.Equal(bytes.TrimSpace(r.Error), nullID) {
		return nil, nil
	}
	var e Error
	if err := json.Unmarshal(r.Error, &e); err != nil {
		return nil, fmt.Errorf("%w: error member: %v", ErrMalformedResponse, err)
	}
	return &e, nil
}

// DecodeResponse parses a single response object.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnmarshalJSON validates the protocol marker and the presence of the id member.
func (r *Response) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return r.fromFields(fields)
}

func (r *Response) fromFields(fields map[string]json.RawMessage) error {
	if err := checkVersion(fields); err != nil {
		return err
	}
	id, ok := fields["id"]
	if !ok {
		return fmt.Errorf("%w: missing id", ErrMalformedResponse)
	}
	r.ID = id
	r.Result = fields["result"]
	r.Error = fields["error"]
	return nil
}

// MarshalJSON writes the version marker, error and result when present, and always the id.
func (r *Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"jsonrpc":"` + Version + `"`)
	if r.HasError() {
		buf.WriteString(`,"error":`)
		buf.Write(r.Error)
	}
	if r.HasResult() {
		buf.WriteString(`,"result":`)
		buf.Write(r.Result)
	}
	buf.WriteString(`,"id":`)
	buf.Write(normalizeID(r.ID))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func checkVersion(fields map[string]json.RawMessage) error {
	raw, ok := fields["jsonrpc"]
	if !ok {
		return fmt.Errorf("%w: missing jsonrpc marker", ErrMalformedResponse)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil || v != Version {
		return fmt.Errorf("%w: jsonrpc marker %s", ErrMalformedResponse, string(raw))
	}
	return nil
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return nullID
	}
	return id
}

// IDKey canonicalises an id so that equal ids compare equal regardless of whitespace.
// String and number ids stay distinct: "7" and 7 have different keys.
func IDKey(id json.RawMessage) string {
	id = normalizeID(id)
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(id)
	}
	return buf.String()
}
