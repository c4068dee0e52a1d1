package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/hostrpc/internal/config"
	"github.com/morezero/hostrpc/internal/session"
	"github.com/morezero/hostrpc/pkg/journal"
)

const closeTimeout = 10 * time.Second

type commandContext struct {
	urlFlag      *string
	timeoutFlag  *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(urlFlag, timeoutFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		urlFlag:      urlFlag,
		timeoutFlag:  timeoutFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads the environment once and applies the persistent flags on top.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadConfig()
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := applyFlags(cfg, flagValue(c.urlFlag), flagValue(c.timeoutFlag), flagValue(c.logLevelFlag)); err != nil {
			c.configErr = err
			return
		}
		session.SetupLogging(cfg.LogLevel, os.Stderr)
		c.config = cfg
	})
	return c.config, c.configErr
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func applyFlags(cfg *config.Config, url, timeout, logLevel string) error {
	if url != "" {
		cfg.URL = url
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", timeout, err)
		}
		cfg.RequestTimeout = d
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// withSession opens a session, keeps its client loop running while fn executes and closes
// it afterwards.
func (c *commandContext) withSession(parent context.Context, fn func(ctx context.Context, s *session.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext(parent)
	defer stop()

	s, err := session.Open(ctx, cfg)
	if err != nil {
		return err
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- s.Serve(serveCtx) }()

	runErr := fn(ctx, s)

	cancelServe()
	<-served
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// withPool opens the journal database for maintenance commands.
func (c *commandContext) withPool(parent context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx, stop := signalContext(parent)
	defer stop()

	pool, err := journal.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}
