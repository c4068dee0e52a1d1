package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when an inbound message violates the envelope rules.
var ErrMalformedResponse = errors.New("jsonrpc: malformed response")

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is the error object of a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: error %d: %s", e.Code, e.Message)
}
