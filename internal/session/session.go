// Package session wires a process-wide hostrpc client: logging, the COMMS connection, the
// optional call journal and the health endpoint.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/hostrpc/internal/config"
	"github.com/morezero/hostrpc/pkg/client"
	"github.com/morezero/hostrpc/pkg/commsutil"
	"github.com/morezero/hostrpc/pkg/journal"
	"github.com/morezero/hostrpc/pkg/transport"
)

const logPrefix = "session:session"

const (
	versionField    = "version"
	shutdownTimeout = 10 * time.Second
)

// Session owns the connection, the client and, when enabled, the journal pool.
type Session struct {
	cfg       *config.Config
	nc        *comms.Conn
	pool      *pgxpool.Pool
	recorder  *journal.PostgresRecorder
	client    atomic.Pointer[client.Client]
	connected atomic.Bool
}

// ParseLogLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogging installs the process-wide text logger.
func SetupLogging(level string, w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}

// Open connects to COMMS, opens the journal if configured and builds the client. If a version
// constraint is configured the daemon's version is checked before Open returns.
func Open(ctx context.Context, cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg}

	// Step 1: Connect to COMMS
	nc, err := commsutil.Connect(ctx, cfg.URL, cfg.Name, &commsutil.ConnectOptions{
		Policy:       cfg.ConnectPolicy(),
		OnDisconnect: s.onDisconnect,
		OnReconnect:  s.onReconnect,
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc
	s.connected.Store(true)
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, cfg.URL))

	// Step 2: Subscribe the transport
	tr, err := transport.NewNATS(nc, transport.Options{
		RequestSubject: cfg.RequestSubject,
		EventPrefix:    cfg.EventPrefix,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%s - failed to open transport: %w", logPrefix, err)
	}

	// Step 3: Journal
	var rec journal.Recorder
	if cfg.Journal {
		if err := s.openJournal(ctx); err != nil {
			tr.Close()
			nc.Close()
			return nil, err
		}
		rec = s.recorder
	}

	// Step 4: Client
	c := client.New(tr, client.Options{
		RequestTimeout: cfg.RequestTimeout,
		SweepInterval:  cfg.SweepInterval,
		MaxBacklog:     cfg.MaxBacklog,
		Journal:        rec,
	})
	s.client.Store(c)

	// Step 5: Server version
	if cfg.VersionConstraint != "" {
		v, err := c.VerifyServerVersion(ctx, cfg.VersionMethod, versionField, cfg.VersionConstraint)
		if err != nil {
			s.release()
			return nil, fmt.Errorf("%s - server version check failed: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Server version %s satisfies %s", logPrefix, v, cfg.VersionConstraint))
	}
	return s, nil
}

func (s *Session) openJournal(ctx context.Context) error {
	pool, err := journal.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if s.cfg.RunMigrations {
		files, err := journal.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if _, err := journal.RunMigrations(ctx, pool, files); err != nil {
			pool.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	s.pool = pool
	s.recorder = journal.NewPostgresRecorder(pool)
	slog.Info(fmt.Sprintf("%s - Call journal enabled", logPrefix))
	return nil
}

// Client returns the session's client.
func (s *Session) Client() *client.Client {
	return s.client.Load()
}

// Journal returns the Postgres journal, or nil when journaling is off.
func (s *Session) Journal() *journal.PostgresRecorder {
	return s.recorder
}

// Connected reports whether the COMMS connection is currently up.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

func (s *Session) onDisconnect(err error) {
	s.connected.Store(false)
	if c := s.client.Load(); c != nil {
		c.Disconnected(err)
	}
}

func (s *Session) onReconnect() {
	s.connected.Store(true)
}

// Serve runs the client loop and, if configured, the health endpoint until ctx ends.
func (s *Session) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Client().Run(gctx)
	})

	if s.cfg.HTTPAddr != "" {
		srv := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, s.cfg.HTTPAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// Health is the /health payload.
type Health struct {
	Status        string `json:"status"`
	Connected     bool   `json:"connected"`
	PendingCalls  int    `json:"pendingCalls"`
	Subscriptions int    `json:"subscriptions"`
	Timestamp     string `json:"timestamp"`
}

// Health reports the session state.
func (s *Session) Health() *Health {
	h := &Health{
		Status:    "healthy",
		Connected: s.Connected(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if c := s.Client(); c != nil {
		h.PendingCalls = c.Tracker().Pending()
		h.Subscriptions = c.Registry().Len()
	}
	if !h.Connected {
		h.Status = "unhealthy"
	}
	return h
}

// Handler serves /health and /ready.
func (s *Session) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := s.Health()
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux
}

// Close waits for in-flight calls to settle (bounded by ctx), then closes the client, drains
// the connection and closes the journal pool.
func (s *Session) Close(ctx context.Context) error {
	s.settle(ctx)
	return s.release()
}

// settle waits for in-flight calls and returns how many were still pending when ctx ended.
func (s *Session) settle(ctx context.Context) int {
	c := s.Client()
	if c == nil {
		return 0
	}
	if err := c.WaitIdle(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - waiting for pending calls failed: %v", logPrefix, err))
	}
	n := c.Tracker().Pending()
	if n > 0 {
		slog.Warn(fmt.Sprintf("%s - %d pending calls did not settle before shutdown", logPrefix, n))
	}
	return n
}

func (s *Session) release() error {
	var errs []error
	if c := s.Client(); c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("%s - drain failed: %w", logPrefix, err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

// Run is the long-running mode: it opens a session, serves until SIGINT or SIGTERM, then
// shuts down.
func Run(cfg *config.Config) error {
	slog.Info(fmt.Sprintf("%s - Starting hostrpc session", logPrefix))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Session is ready", logPrefix))

	serveErr := s.Serve(ctx)
	slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		slog.Error(fmt.Sprintf("%s - close failed: %v", logPrefix, err))
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return serveErr
}
