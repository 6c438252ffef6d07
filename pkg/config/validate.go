package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// validFormats are the dialects a provider may declare.
var validFormats = map[string]bool{
	"openai-chat":      true,
	"openai-responses": true,
	"anthropic":        true,
}

// validLogLevels are the accepted logging levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationError aggregates every problem found in one pass, so operators
// fix a broken config in one round trip.
type ValidationError struct {
	// Problems lists each validation failure
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d configuration problems: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the configuration for internal consistency. It returns a
// *ValidationError listing every problem found, or nil.
func Validate(cfg *Config) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cfg.Server.ListenAddress == "" {
		addf("server.listen_address is required")
	}

	if len(cfg.Providers) == 0 {
		addf("at least one provider is required")
	}
	providerNames := make(map[string]bool)
	accountIDs := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.Name == "" {
			addf("providers[%d].name is required", i)
			continue
		}
		if providerNames[p.Name] {
			addf("duplicate provider name %q", p.Name)
		}
		providerNames[p.Name] = true

		if p.BaseURL == "" {
			addf("provider %q: base_url is required", p.Name)
		}
		if !validFormats[p.Format] {
			addf("provider %q: unknown format %q", p.Name, p.Format)
		}
		if len(p.Accounts) == 0 {
			addf("provider %q: at least one account is required", p.Name)
		}
		for j, a := range p.Accounts {
			if a.ID == "" {
				addf("provider %q: accounts[%d].id is required", p.Name, j)
				continue
			}
			if accountIDs[a.ID] {
				addf("duplicate account id %q", a.ID)
			}
			accountIDs[a.ID] = true
			if a.APIKey == "" {
				addf("account %q: api_key is required (file or GATEHOUSE_APIKEY_%s)",
					a.ID, envKey(a.ID))
			}
		}
	}

	if cfg.Models.DefaultProvider != "" && !providerNames[cfg.Models.DefaultProvider] {
		addf("models.default_provider %q is not a configured provider", cfg.Models.DefaultProvider)
	}
	for name, chain := range cfg.Models.Aliases {
		if name == "" {
			addf("alias with empty name")
		}
		if len(chain) == 0 {
			addf("alias %q: chain is empty", name)
		}
		for i, t := range chain {
			if t.Provider == "" || t.Model == "" {
				addf("alias %q[%d]: provider and model are required", name, i)
				continue
			}
			if !providerNames[t.Provider] {
				addf("alias %q[%d]: provider %q is not configured", name, i, t.Provider)
			}
		}
	}

	if cfg.Fallback.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Fallback.SweepSchedule); err != nil {
			addf("fallback.sweep_schedule: %v", err)
		}
	}
	if cfg.Usage.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Usage.PruneSchedule); err != nil {
			addf("usage.prune_schedule: %v", err)
		}
	}
	if cfg.Usage.RetentionDays < 0 {
		addf("usage.retention_days must not be negative")
	}

	if !validLogLevels[cfg.Logging.Level] {
		addf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		addf("logging.format %q is not json or text", cfg.Logging.Format)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
