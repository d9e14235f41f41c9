// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Advisor  AdvisorConfig
	Profiles ProfilesConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// ImportConfig holds file selection, preview and commit settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted upload in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxRows is the maximum number of data rows per file (default: 100000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"100000"`

	// MaxConcurrent is the maximum number of commits running at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a commit waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// ChunkSize is the number of rows persisted per transaction (default: 50)
	ChunkSize int `env:"IMPORT_CHUNK_SIZE" default:"50"`

	// CommitTimeout bounds a whole commit (default: 10m)
	CommitTimeout time.Duration `env:"IMPORT_COMMIT_TIMEOUT" default:"10m"`

	// SessionTTL is how long an idle import session is kept (default: 30m)
	SessionTTL time.Duration `env:"IMPORT_SESSION_TTL" default:"30m"`

	// PreviewSampleLimit caps the rows returned per preview class (default: 100)
	PreviewSampleLimit int `env:"IMPORT_PREVIEW_SAMPLE_LIMIT" default:"100"`

	// LockNaturalKeys serializes concurrent writers of the same record (default: false)
	LockNaturalKeys bool `env:"IMPORT_LOCK_NATURAL_KEYS" default:"false"`
}

// AdvisorConfig holds assisted column mapping settings.
type AdvisorConfig struct {
	// Provider is none, fuzzy or openai (default: fuzzy)
	Provider string `env:"ADVISOR_PROVIDER" default:"fuzzy"`

	// OpenAIKey is the API key for the openai provider
	OpenAIKey string `env:"OPENAI_API_KEY"`

	// OpenAIBaseURL points the openai provider at a compatible gateway
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// Model is the chat model used by the openai provider (default: gpt-4o-mini)
	Model string `env:"ADVISOR_MODEL" default:"gpt-4o-mini"`

	// Timeout bounds one assisted mapping call (default: 8s)
	Timeout time.Duration `env:"ADVISOR_TIMEOUT" default:"8s"`

	// RedisURL enables the suggestion cache, e.g. redis://localhost:6379/0
	RedisURL string `env:"ADVISOR_REDIS_URL" envAlt:"REDIS_URL"`

	// CacheTTL is how long cached suggestions are reused (default: 24h)
	CacheTTL time.Duration `env:"ADVISOR_CACHE_TTL" default:"24h"`
}

// ProfilesConfig selects where mapping profiles are stored.
type ProfilesConfig struct {
	// Backend is postgres or file (default: postgres)
	Backend string `env:"PROFILES_BACKEND" default:"postgres"`

	// Path is the YAML file used by the file backend (default: profiles.yaml)
	Path string `env:"PROFILES_PATH" default:"profiles.yaml"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for file selection (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
