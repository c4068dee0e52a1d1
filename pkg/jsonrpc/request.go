package jsonrpc

import (
	"encoding/json"
	"fmt"
)

var emptyParams = json.RawMessage("{}")

// Request is an outbound method call.
type Request struct {
	Method string
	Params json.RawMessage
	ID     json.RawMessage
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// NewRequest encodes params and builds a request. A nil params value becomes an empty object.
// The id is marshalled as given, so strings stay strings and numbers stay numbers.
func NewRequest(method string, params interface{}, id interface{}) (*Request, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode id: %w", err)
	}
	req := &Request{Method: method, ID: rawID, Params: emptyParams}
	if params != nil {
		switch p := params.(type) {
		case json.RawMessage:
			req.Params = p
		default:
			data, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("jsonrpc: encode params for %s: %w", method, err)
			}
			req.Params = data
		}
	}
	return req, nil
}

// Key returns the canonical form of the request id.
func (r *Request) Key() string {
	return IDKey(r.ID)
}

// MarshalJSON writes the request envelope.
func (r *Request) MarshalJSON() ([]byte, error) {
	params := r.Params
	if len(params) == 0 {
		params = emptyParams
	}
	return json.Marshal(wireRequest{
		JSONRPC: Version,
		Method:  r.Method,
		Params:  params,
		ID:      normalizeID(r.ID),
	})
}

// UnmarshalJSON reads a request envelope; used by responders and tests.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.JSONRPC != Version {
		return fmt.Errorf("jsonrpc: unsupported version %q", w.JSONRPC)
	}
	r.Method = w.Method
	r.Params = w.Params
	r.ID = w.ID
	return nil
}
