// Package config defines the gateway's YAML configuration: the listening
// server, upstream providers and their accounts, the model alias table,
// fallback tuning, logging, metrics, and usage retention. Loading applies
// defaults, environment overrides, and validation in that order.
package config

import "time"

// Config is the root configuration document.
type Config struct {
	// Server configures the HTTP listener
	Server ServerConfig `yaml:"server"`

	// Providers lists the upstream providers and their accounts
	Providers []ProviderConfig `yaml:"providers"`

	// Models configures model name resolution
	Models ModelsConfig `yaml:"models"`

	// Fallback tunes the orchestration loop
	Fallback FallbackConfig `yaml:"fallback"`

	// Logging configures structured logging
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`

	// Usage configures usage recording and retention
	Usage UsageConfig `yaml:"usage"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the host:port to bind
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Zero disables it, which streaming responses require.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	// Name is the provider identifier referenced by aliases and accounts
	Name string `yaml:"name"`

	// BaseURL is the provider origin without the version prefix
	BaseURL string `yaml:"base_url"`

	// Format is the dialect the provider speaks: "openai-chat",
	// "openai-responses", or "anthropic". Defaults to "openai-chat".
	Format string `yaml:"format"`

	// RefreshURL is the optional credential refresh endpoint
	RefreshURL string `yaml:"refresh_url"`

	// Accounts lists the provider's credentialed accounts, in fallback order
	Accounts []AccountConfig `yaml:"accounts"`
}

// AccountConfig is one credentialed account.
type AccountConfig struct {
	// ID uniquely identifies the account
	ID string `yaml:"id"`

	// APIKey is the credential material
	APIKey string `yaml:"api_key"`
}

// ModelsConfig configures model name resolution.
type ModelsConfig struct {
	// DefaultProvider receives unresolved model names verbatim
	DefaultProvider string `yaml:"default_provider"`

	// Aliases maps client-visible names to ordered target chains. A
	// single-element chain is a plain alias; more elements form a fallback
	// combo.
	Aliases map[string][]TargetConfig `yaml:"aliases"`
}

// TargetConfig is one (provider, model) entry in an alias chain.
type TargetConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// FallbackConfig tunes the orchestration loop.
type FallbackConfig struct {
	// AttemptTimeout bounds one non-streaming upstream attempt
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// RefreshTimeout bounds one credential refresh call
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// Cooldown is how long a failed account stays out of rotation
	Cooldown time.Duration `yaml:"cooldown"`

	// SweepSchedule is the cron expression for the account sweeper
	SweepSchedule string `yaml:"sweep_schedule"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// Format is "json" or "text"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes GET /metrics when true
	Enabled bool `yaml:"enabled"`

	// Path overrides the metrics endpoint path
	Path string `yaml:"path"`
}

// UsageConfig configures usage recording.
type UsageConfig struct {
	// Enabled turns on the SQLite usage sink
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the usage database file
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionDays is how long usage rows are kept
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for retention pruning
	PruneSchedule string `yaml:"prune_schedule"`
}
