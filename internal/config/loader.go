package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses configuration from a YAML file. Missing sections
// fall back to Defaults(); unknown keys are rejected.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with -config flag", absPath)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero values left by an explicit-but-partial section.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}

	if cfg.Pool.MaxConnections == 0 {
		cfg.Pool.MaxConnections = def.Pool.MaxConnections
	}
	if cfg.Pool.MaxQueueSize == 0 {
		cfg.Pool.MaxQueueSize = def.Pool.MaxQueueSize
	}
	if cfg.Pool.RequestTimeout == 0 {
		cfg.Pool.RequestTimeout = def.Pool.RequestTimeout
	}
	if cfg.Pool.ShutdownGrace == 0 {
		cfg.Pool.ShutdownGrace = def.Pool.ShutdownGrace
	}
	if cfg.Pool.WorkerCount == 0 {
		cfg.Pool.WorkerCount = def.Pool.WorkerCount
	}

	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = def.Sessions.MaxSessions
	}
	if cfg.Sessions.SessionTimeout == 0 {
		cfg.Sessions.SessionTimeout = def.Sessions.SessionTimeout
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = def.Sessions.SweepInterval
	}

	if cfg.Store.Root == "" {
		cfg.Store.Root = def.Store.Root
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = def.Journal.Path
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = def.Journal.Retention
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
}

// Validate checks the configuration for values that would misbehave at runtime.
func Validate(cfg *Config) error {
	if cfg.Pool.MaxConnections < 1 {
		return fmt.Errorf("pool.max_connections must be >= 1, got %d", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.MaxQueueSize < 1 {
		return fmt.Errorf("pool.max_queue_size must be >= 1, got %d", cfg.Pool.MaxQueueSize)
	}
	if cfg.Pool.RequestTimeout <= 0 {
		return fmt.Errorf("pool.request_timeout must be positive, got %s", cfg.Pool.RequestTimeout)
	}
	if cfg.Pool.WorkerCount < 1 {
		return fmt.Errorf("pool.worker_count must be >= 1, got %d", cfg.Pool.WorkerCount)
	}
	if cfg.Sessions.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be >= 1, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Sessions.SessionTimeout <= 0 {
		return fmt.Errorf("sessions.session_timeout must be positive, got %s", cfg.Sessions.SessionTimeout)
	}
	if cfg.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive, got %s", cfg.Sessions.SweepInterval)
	}
	if cfg.Store.Root == "" {
		return fmt.Errorf("store.root must be set")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when api.enabled is true")
	}
	return nil
}
