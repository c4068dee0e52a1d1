package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Notification is an out-of-band event. Method carries the subscription id the event is
// addressed to and Params the named-map payload. No response is expected.
type Notification struct {
	Method string
	Params map[string]interface{}
}

type wireNotification struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

// MarshalJSON writes the notification envelope.
func (n *Notification) MarshalJSON() ([]byte, error) {
	params := n.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return json.Marshal(wireNotification{JSONRPC: Version, Method: n.Method, Params: params})
}

func (n *Notification) fromFields(fields map[string]json.RawMessage) error {
	if err := checkVersion(fields); err != nil {
		return err
	}
	if err := json.Unmarshal(fields["method"], &n.Method); err != nil || n.Method == "" {
		return fmt.Errorf("%w: notification without method", ErrMalformedResponse)
	}
	n.Params = nil
	if raw, ok := fields["params"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &n.Params); err != nil {
			return fmt.Errorf("%w: notification params: %v", ErrMalformedResponse, err)
		}
	}
	if n.Params == nil {
		n.Params = map[string]interface{}{}
	}
	return nil
}
