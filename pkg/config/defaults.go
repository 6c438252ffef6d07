package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Provider defaults
	DefaultProviderFormat = "openai-chat"

	// Fallback defaults
	DefaultAttemptTimeout = 120 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
	DefaultCooldown       = 5 * time.Minute
	DefaultSweepSchedule  = "* * * * *"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Metrics defaults
	DefaultMetricsPath = "/metrics"

	// Usage defaults
	DefaultUsageSQLitePath   = "data/usage.db"
	DefaultRetentionDays     = 90
	DefaultPruneSchedule     = "0 3 * * *"
)

// ApplyDefaults fills unset fields with default values. WriteTimeout stays
// zero unless configured: a write deadline would sever long streams.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].Format == "" {
			cfg.Providers[i].Format = DefaultProviderFormat
		}
	}

	if cfg.Models.DefaultProvider == "" && len(cfg.Providers) > 0 {
		cfg.Models.DefaultProvider = cfg.Providers[0].Name
	}

	if cfg.Fallback.AttemptTimeout == 0 {
		cfg.Fallback.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Fallback.RefreshTimeout == 0 {
		cfg.Fallback.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Fallback.Cooldown == 0 {
		cfg.Fallback.Cooldown = DefaultCooldown
	}
	if cfg.Fallback.SweepSchedule == "" {
		cfg.Fallback.SweepSchedule = DefaultSweepSchedule
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Usage.SQLitePath == "" {
		cfg.Usage.SQLitePath = DefaultUsageSQLitePath
	}
	if cfg.Usage.RetentionDays == 0 {
		cfg.Usage.RetentionDays = DefaultRetentionDays
	}
	if cfg.Usage.PruneSchedule == "" {
		cfg.Usage.PruneSchedule = DefaultPruneSchedule
	}
}
