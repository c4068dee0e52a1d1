package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morezero/hostrpc/pkg/client"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseParams validates a JSON params argument. An empty argument means no params.
func parseParams(arg string) (json.RawMessage, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("params are not valid JSON: %s", arg)
	}
	return json.RawMessage(arg), nil
}

// parsePayload decodes an event payload, which must be a JSON object.
func parsePayload(arg string) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(arg), &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

type batchEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// readBatch reads a JSON array of {"method", "params"} objects from r.
func readBatch(r io.Reader) ([]client.Request, error) {
	var entries []batchEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("batch is empty")
	}
	out := make([]client.Request, len(entries))
	for i, e := range entries {
		if e.Method == "" {
			return nil, fmt.Errorf("batch entry %d has no method", i)
		}
		out[i] = client.Request{Method: e.Method}
		if len(e.Params) > 0 {
			out[i].Params = e.Params
		}
	}
	return out, nil
}

// openInput opens path, or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
