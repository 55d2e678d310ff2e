package config

import "time"

// Config represents the complete quern configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Pool     PoolConfig     `yaml:"pool"`
	Sessions SessionsConfig `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// PoolConfig defines the connection pool and worker pool bounds.
type PoolConfig struct {
	// MaxConnections bounds the number of requests processed concurrently.
	MaxConnections int `yaml:"max_connections"`
	// MaxQueueSize bounds the admission queue. Submissions beyond this are
	// rejected immediately rather than buffered.
	MaxQueueSize int `yaml:"max_queue_size"`
	// RequestTimeout is the deadline for a request from admission to resolution.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ShutdownGrace is how long shutdown waits for active requests to drain
	// before force-clearing them.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	// WorkerCount is the number of isolated worker execution units.
	WorkerCount int `yaml:"worker_count"`
}

// SessionsConfig defines session lifecycle settings.
type SessionsConfig struct {
	MaxSessions    int           `yaml:"max_sessions"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// StoreConfig defines the content store settings.
type StoreConfig struct {
	// Root is the directory the content store serves from. All paths are
	// confined to this root.
	Root string `yaml:"root"`
	// Watch enables filesystem change notifications for snapshot invalidation.
	Watch bool `yaml:"watch"`
}

// JournalConfig defines the request journal settings.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is the bearer token required on every /v1 route when set.
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "quern",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Pool: PoolConfig{
			MaxConnections: 8,
			MaxQueueSize:   64,
			RequestTimeout: 30 * time.Second,
			ShutdownGrace:  10 * time.Second,
			WorkerCount:    4,
		},
		Sessions: SessionsConfig{
			MaxSessions:    100,
			SessionTimeout: 30 * time.Minute,
			SweepInterval:  time.Minute,
		},
		Store: StoreConfig{
			Root:  "./content",
			Watch: true,
		},
		Journal: JournalConfig{
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8080",
		},
	}
}
