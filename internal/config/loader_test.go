package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
service:
  name: test-quern
pool:
  max_connections: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.Name != "test-quern" {
		t.Fatalf("explicit value lost: %q", cfg.Service.Name)
	}
	if cfg.Service.LogLevel != "info" {
		t.Fatalf("log level default missing: %q", cfg.Service.LogLevel)
	}
	if cfg.Pool.MaxConnections != 2 {
		t.Fatalf("explicit pool bound lost: %d", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.MaxQueueSize != 64 {
		t.Fatalf("queue size default missing: %d", cfg.Pool.MaxQueueSize)
	}
	if cfg.Pool.RequestTimeout != 30*time.Second {
		t.Fatalf("request timeout default missing: %s", cfg.Pool.RequestTimeout)
	}
	if cfg.Sessions.MaxSessions != 100 {
		t.Fatalf("session cap default missing: %d", cfg.Sessions.MaxSessions)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pool:
  request_timeout: 5s
  shutdown_grace: 2s
sessions:
  session_timeout: 10m
  sweep_interval: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool.RequestTimeout != 5*time.Second {
		t.Fatalf("request_timeout = %s", cfg.Pool.RequestTimeout)
	}
	if cfg.Sessions.SessionTimeout != 10*time.Minute {
		t.Fatalf("session_timeout = %s", cfg.Sessions.SessionTimeout)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pool:
  max_conections: 4
`)
	if _, err := Load(path); err == nil {
		t.Fatal("misspelled keys must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("missing file should fail")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unhelpful error: %v", err)
	}
}

func TestValidateRejectsBadBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative connections", func(c *Config) { c.Pool.MaxConnections = -1 }, "max_connections"},
		{"negative queue", func(c *Config) { c.Pool.MaxQueueSize = -1 }, "max_queue_size"},
		{"negative timeout", func(c *Config) { c.Pool.RequestTimeout = -time.Second }, "request_timeout"},
		{"zero workers", func(c *Config) { c.Pool.WorkerCount = -1 }, "worker_count"},
		{"zero sessions", func(c *Config) { c.Sessions.MaxSessions = -1 }, "max_sessions"},
		{"no store root", func(c *Config) { c.Store.Root = "" }, "store.root"},
		{"api without listen", func(c *Config) { c.API.Enabled = true; c.API.Listen = "" }, "api.listen"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
