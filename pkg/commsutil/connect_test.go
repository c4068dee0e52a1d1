package commsutil

import (
	"context"
	"errors"
	"testing"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hostrpc/pkg/retry"
)

const connectTestPrefix = "commsutil:connect_test"

func TestConnect_InvalidURL(t *testing.T) {
	nc, err := Connect(context.Background(), "nats://127.0.0.1:1", "test-client", &ConnectOptions{
		Policy:  retry.NewPolicy(1, 1, time.Millisecond, retry.ErrIO),
		Timeout: 200 * time.Millisecond,
	})
	if err == nil {
		if nc != nil {
			nc.Close()
		}
		t.Fatalf("%s - expected error for unreachable server", connectTestPrefix)
	}
	if nc != nil {
		t.Errorf("%s - expected nil connection on error", connectTestPrefix)
	}
	if !errors.Is(err, retry.ErrExhausted) {
		t.Errorf("%s - err = %v, want retry.ErrExhausted", connectTestPrefix, err)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Connect(ctx, "nats://127.0.0.1:1", "test-client", &ConnectOptions{
		Policy:  retry.NewPolicy(5, 1, time.Hour, retry.ErrIO),
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("%s - err = %v, want context.Canceled", connectTestPrefix, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		wantIO bool
	}{
		{"nil", nil, false},
		{"no servers", comms.ErrNoServers, true},
		{"closed", comms.ErrConnectionClosed, true},
		{"timeout", comms.ErrTimeout, true},
		{"bad subject", comms.ErrBadSubject, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if errors.Is(got, retry.ErrIO) != tt.wantIO {
				t.Errorf("%s - Classify(%v) = %v, wantIO %v", connectTestPrefix, tt.err, got, tt.wantIO)
			}
			if tt.err != nil && !errors.Is(got, tt.err) {
				t.Errorf("%s - Classify lost the original error", connectTestPrefix)
			}
		})
	}
}
