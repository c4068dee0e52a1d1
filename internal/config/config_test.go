package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/morezero/hostrpc/pkg/retry"
)

var allEnvVars = []string{
	"HOSTRPC_URL", "HOSTRPC_NAME",
	"HOSTRPC_REQUEST_SUBJECT", "HOSTRPC_EVENT_PREFIX",
	"HOSTRPC_REQUEST_TIMEOUT", "HOSTRPC_SWEEP_INTERVAL",
	"HOSTRPC_CONNECT_ATTEMPTS", "HOSTRPC_CONNECT_WAIT",
	"HOSTRPC_MAX_BACKLOG", "HOSTRPC_VERSION_CONSTRAINT", "HOSTRPC_VERSION_METHOD",
	"HOSTRPC_HTTP_ADDR", "HOSTRPC_JOURNAL",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.URL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - URL = %q, want %q", cfg.URL, "nats://127.0.0.1:4222")
	}
	if cfg.Name != "hostrpc" {
		t.Errorf("config:config_test - Name = %q, want %q", cfg.Name, "hostrpc")
	}
	if cfg.RequestSubject != "hostrpc.requests" {
		t.Errorf("config:config_test - RequestSubject = %q", cfg.RequestSubject)
	}
	if cfg.EventPrefix != "hostrpc.events" {
		t.Errorf("config:config_test - EventPrefix = %q", cfg.EventPrefix)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.SweepInterval != time.Second {
		t.Errorf("config:config_test - SweepInterval = %v, want 1s", cfg.SweepInterval)
	}
	if cfg.ConnectAttempts != 5 || cfg.ConnectWait != 2*time.Second {
		t.Errorf("config:config_test - connect = %d/%v, want 5/2s", cfg.ConnectAttempts, cfg.ConnectWait)
	}
	if cfg.MaxBacklog != 0 {
		t.Errorf("config:config_test - MaxBacklog = %d, want 0", cfg.MaxBacklog)
	}
	if cfg.VersionConstraint != "" {
		t.Errorf("config:config_test - VersionConstraint = %q, want empty", cfg.VersionConstraint)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("config:config_test - HTTPAddr = %q, want empty", cfg.HTTPAddr)
	}
	if cfg.Journal || cfg.RunMigrations {
		t.Error("config:config_test - expected journal and migrations off by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"HOSTRPC_URL":                "nats://custom:4222",
		"HOSTRPC_NAME":               "agent-1",
		"HOSTRPC_REQUEST_SUBJECT":    "custom.requests",
		"HOSTRPC_EVENT_PREFIX":       "custom.events",
		"HOSTRPC_REQUEST_TIMEOUT":    "10s",
		"HOSTRPC_SWEEP_INTERVAL":     "250ms",
		"HOSTRPC_CONNECT_ATTEMPTS":   "-1",
		"HOSTRPC_CONNECT_WAIT":       "500ms",
		"HOSTRPC_MAX_BACKLOG":        "128",
		"HOSTRPC_VERSION_CONSTRAINT": ">= 4.30",
		"HOSTRPC_HTTP_ADDR":          "127.0.0.1:9090",
		"HOSTRPC_JOURNAL":            "true",
		"DATABASE_URL":               "postgres://test@localhost/test",
		"LOG_LEVEL":                  "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.URL != "nats://custom:4222" || cfg.Name != "agent-1" {
		t.Errorf("config:config_test - URL/Name = %q/%q", cfg.URL, cfg.Name)
	}
	if cfg.RequestSubject != "custom.requests" || cfg.EventPrefix != "custom.events" {
		t.Errorf("config:config_test - subjects = %q/%q", cfg.RequestSubject, cfg.EventPrefix)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.SweepInterval != 250*time.Millisecond {
		t.Errorf("config:config_test - timeouts = %v/%v", cfg.RequestTimeout, cfg.SweepInterval)
	}
	if cfg.ConnectAttempts != retry.Unbounded || cfg.ConnectWait != 500*time.Millisecond {
		t.Errorf("config:config_test - connect = %d/%v", cfg.ConnectAttempts, cfg.ConnectWait)
	}
	if cfg.MaxBacklog != 128 {
		t.Errorf("config:config_test - MaxBacklog = %d, want 128", cfg.MaxBacklog)
	}
	if cfg.VersionConstraint != ">= 4.30" {
		t.Errorf("config:config_test - VersionConstraint = %q", cfg.VersionConstraint)
	}
	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("config:config_test - HTTPAddr = %q", cfg.HTTPAddr)
	}
	if !cfg.Journal || cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - journal = %v %q", cfg.Journal, cfg.DatabaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config:config_test - overrides should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			URL:             "nats://127.0.0.1:4222",
			RequestSubject:  "hostrpc.requests",
			EventPrefix:     "hostrpc.events",
			RequestTimeout:  time.Second,
			SweepInterval:   time.Second,
			ConnectAttempts: 5,
			ConnectWait:     time.Second,
			DatabaseURL:     "postgres://localhost/hostrpc",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.URL = "" }, wantErr: "HOSTRPC_URL"},
		{name: "empty subject", mutate: func(c *Config) { c.RequestSubject = "" }, wantErr: "HOSTRPC_REQUEST_SUBJECT"},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "HOSTRPC_REQUEST_TIMEOUT"},
		{name: "zero sweep", mutate: func(c *Config) { c.SweepInterval = 0 }, wantErr: "HOSTRPC_SWEEP_INTERVAL"},
		{name: "attempts below unbounded", mutate: func(c *Config) { c.ConnectAttempts = -2 }, wantErr: "HOSTRPC_CONNECT_ATTEMPTS"},
		{name: "negative wait", mutate: func(c *Config) { c.ConnectWait = -time.Second }, wantErr: "HOSTRPC_CONNECT_WAIT"},
		{name: "negative backlog", mutate: func(c *Config) { c.MaxBacklog = -1 }, wantErr: "HOSTRPC_MAX_BACKLOG"},
		{name: "bad constraint", mutate: func(c *Config) { c.VersionConstraint = "not a constraint" }, wantErr: "HOSTRPC_VERSION_CONSTRAINT"},
		{name: "journal without database", mutate: func(c *Config) { c.Journal = true; c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("config:config_test - error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ConnectPolicy(t *testing.T) {
	c := &Config{ConnectAttempts: 3, ConnectWait: 1500 * time.Millisecond}
	p := c.ConnectPolicy()
	if p.Attempts() != 3 {
		t.Errorf("config:config_test - Attempts() = %d, want 3", p.Attempts())
	}
	if p.Wait() != 1500*time.Millisecond {
		t.Errorf("config:config_test - Wait() = %v, want 1.5s", p.Wait())
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		os.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		os.Unsetenv("LOG_LEVEL")

		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}
