package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
//
// The loading sequence is:
//  1. Parse YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Variables use
// the format GATEHOUSE_SECTION_FIELD and always win over file values.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("GATEHOUSE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GATEHOUSE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GATEHOUSE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("GATEHOUSE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("GATEHOUSE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("GATEHOUSE_USAGE_SQLITE_PATH"); val != "" {
		cfg.Usage.SQLitePath = val
	}

	// Per-provider API keys: GATEHOUSE_APIKEY_<ACCOUNT_ID> lets deployments
	// keep credentials out of the config file.
	for i := range cfg.Providers {
		for j := range cfg.Providers[i].Accounts {
			acct := &cfg.Providers[i].Accounts[j]
			if val := os.Getenv("GATEHOUSE_APIKEY_" + envKey(acct.ID)); val != "" {
				acct.APIKey = val
			}
		}
	}
}

// envKey converts an account ID to an environment variable suffix: uppercase
// with dashes mapped to underscores.
func envKey(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case c == '-':
			out[i] = '_'
		default:
			out[i] = c
		}
	}
	return string(out)
}
