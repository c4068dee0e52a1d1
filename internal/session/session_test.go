package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hostrpc/internal/config"
	"github.com/morezero/hostrpc/pkg/client"
	"github.com/morezero/hostrpc/pkg/jsonrpc"
)

const sessionTestPrefix = "session:session_test"

// startTestServer starts an in-process NATS server with a daemon answering requests.
func startTestServer(t *testing.T, version string) (string, func()) {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", sessionTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", sessionTestPrefix)
	}

	daemon, err := comms.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - daemon connect failed: %v", sessionTestPrefix, err)
	}
	_, err = daemon.Subscribe("hostrpc.requests", func(msg *comms.Msg) {
		var req jsonrpc.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		var result []byte
		if req.Method == "Host.version" {
			result, _ = json.Marshal(map[string]string{"version": version})
		} else {
			result, _ = json.Marshal(req.Method)
		}
		data, _ := json.Marshal(jsonrpc.NewResult(req.ID, result))
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - daemon subscribe failed: %v", sessionTestPrefix, err)
	}
	daemon.Flush()

	return ns.ClientURL(), func() {
		daemon.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

func testConfig(url string) *config.Config {
	return &config.Config{
		URL:             url,
		Name:            "session-test",
		RequestSubject:  "hostrpc.requests",
		EventPrefix:     "hostrpc.events",
		RequestTimeout:  5 * time.Second,
		SweepInterval:   50 * time.Millisecond,
		ConnectAttempts: 1,
		ConnectWait:     10 * time.Millisecond,
		VersionMethod:   "Host.version",
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("%s - ParseLogLevel(%q) = %v, want %v", sessionTestPrefix, in, got, want)
		}
	}
}

func TestOpen_CallAndHealth(t *testing.T) {
	url, cleanup := startTestServer(t, "4.31.2")
	defer cleanup()

	cfg := testConfig(url)
	cfg.VersionConstraint = ">= 4.30, < 5"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("%s - Open failed: %v", sessionTestPrefix, err)
	}

	serveCtx, stop := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- s.Serve(serveCtx) }()

	resp, err := s.Client().Call(ctx, "Host.ping", nil)
	if err != nil {
		t.Fatalf("%s - Call failed: %v", sessionTestPrefix, err)
	}
	if string(resp.Result) != `"Host.ping"` {
		t.Errorf("%s - Result = %s", sessionTestPrefix, resp.Result)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("%s - /health status = %d, want 200", sessionTestPrefix, rec.Code)
	}
	var h Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("%s - decode health: %v", sessionTestPrefix, err)
	}
	if !h.Connected || h.Status != "healthy" {
		t.Errorf("%s - health = %+v", sessionTestPrefix, h)
	}

	stop()
	if err := <-served; err != nil {
		t.Errorf("%s - Serve returned %v", sessionTestPrefix, err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("%s - Close failed: %v", sessionTestPrefix, err)
	}
}

func TestOpen_IncompatibleServer(t *testing.T) {
	url, cleanup := startTestServer(t, "3.9.0")
	defer cleanup()

	cfg := testConfig(url)
	cfg.VersionConstraint = ">= 4.30"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Open(ctx, cfg)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("%s - expected version error, got %v", sessionTestPrefix, err)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig("")
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("%s - expected validation error", sessionTestPrefix)
	}
}

func TestHealth_Disconnected(t *testing.T) {
	s := &Session{cfg: &config.Config{}}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("%s - /health status = %d, want 503", sessionTestPrefix, rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ready") {
		t.Errorf("%s - /ready = %d %s", sessionTestPrefix, rec.Code, rec.Body.String())
	}
}

// silentTransport accepts every frame and never answers.
type silentTransport struct{}

func (silentTransport) Send(context.Context, []byte) error            { return nil }
func (silentTransport) Publish(context.Context, string, []byte) error { return nil }
func (silentTransport) SetHandler(func([]byte))                       {}
func (silentTransport) Close() error                                  { return nil }

func TestClose_ReportsUnsettledCalls(t *testing.T) {
	s := &Session{cfg: &config.Config{}}
	c := client.New(silentTransport{}, client.Options{RequestTimeout: time.Minute})
	s.client.Store(c)

	cl, err := c.Go(context.Background(), "Host.ping", nil)
	if err != nil {
		t.Fatalf("%s - Go failed: %v", sessionTestPrefix, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if n := s.settle(ctx); n != 1 {
		t.Errorf("%s - settle = %d, want 1 unsettled call", sessionTestPrefix, n)
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer closeCancel()
	if err := s.Close(closeCtx); err != nil {
		t.Errorf("%s - Close failed: %v", sessionTestPrefix, err)
	}
	if _, err := cl.AwaitTimeout(time.Second); !errors.Is(err, client.ErrClosed) {
		t.Errorf("%s - pending call err = %v, want ErrClosed", sessionTestPrefix, err)
	}
}
