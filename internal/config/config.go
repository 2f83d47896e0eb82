// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast
// on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Import   ImportConfig
	Campaign CampaignConfig
	History  HistoryConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0,
	// disabled because batch uploads can outlive any fixed limit)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// AllowedOrigins is a comma-separated list of CORS origins (default: *)
	AllowedOrigins []string `env:"SERVER_ALLOWED_ORIGINS" default:"*"`
}

// ImportConfig holds lead list import and validation settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed source file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxRows is the maximum number of data rows accepted per file (default: 100000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"100000"`

	// ChunkSize is the number of rows validated per chunk (default: 1000)
	ChunkSize int `env:"IMPORT_CHUNK_SIZE" default:"1000"`

	// WorkerThreshold is the row count above which validation is offloaded
	// to a background worker (default: 10000)
	WorkerThreshold int `env:"IMPORT_WORKER_THRESHOLD" default:"10000"`

	// YieldInterval is the pause between chunks on the sequential path (default: 50ms)
	YieldInterval time.Duration `env:"IMPORT_YIELD_INTERVAL" default:"50ms"`

	// DefaultRegion is the fallback country for phone numbers without an
	// explicit country prefix (default: US)
	DefaultRegion string `env:"IMPORT_DEFAULT_REGION" default:"US"`

	// MaxConcurrent is the maximum number of parallel import runs (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single import run (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`
}

// CampaignConfig holds settings for the remote campaign API.
type CampaignConfig struct {
	// BaseURL is the campaign API endpoint (default: https://api.vapi.ai)
	BaseURL string `env:"CAMPAIGN_API_BASE_URL" default:"https://api.vapi.ai"`

	// Timeout is the per-request HTTP timeout (default: 60s)
	Timeout time.Duration `env:"CAMPAIGN_API_TIMEOUT" default:"60s"`

	// MaxRetries is the retry budget for retryable API failures (default: 3)
	MaxRetries int `env:"CAMPAIGN_API_MAX_RETRIES" default:"3"`

	// BatchSize is the number of leads submitted per upload batch (default: 1000)
	BatchSize int `env:"CAMPAIGN_BATCH_SIZE" default:"1000"`

	// BatchDelay is the pacing delay between upload batches (default: 2s)
	BatchDelay time.Duration `env:"CAMPAIGN_BATCH_DELAY" default:"2s"`
}

// HistoryConfig holds the optional run-history store settings.
type HistoryConfig struct {
	// DatabaseURL is the PostgreSQL connection string. When empty, run
	// history is disabled and imports still work normally.
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Enabled reports whether a run-history database is configured.
func (c *HistoryConfig) Enabled() bool {
	return c.DatabaseURL != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
