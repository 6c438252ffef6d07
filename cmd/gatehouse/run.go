package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gatehouse-hq/gatehouse/pkg/accounts"
	"gatehouse-hq/gatehouse/pkg/chat"
	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/fallback"
	"gatehouse-hq/gatehouse/pkg/format"
	"gatehouse-hq/gatehouse/pkg/modelmap"
	"gatehouse-hq/gatehouse/pkg/server"
	"gatehouse-hq/gatehouse/pkg/telemetry/logging"
	"gatehouse-hq/gatehouse/pkg/telemetry/metrics"
	"gatehouse-hq/gatehouse/pkg/upstream"
	"gatehouse-hq/gatehouse/pkg/usage"
	"gatehouse-hq/gatehouse/pkg/usage/retention"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Long: `Start the gateway server with the specified configuration.

The server listens on the configured address and serves the chat-completions
and responses endpoints, routing requests through the alias resolver, the
fallback orchestrator, and the configured upstream providers.

Examples:
  # Start with default config
  gatehouse run

  # Start with custom config
  gatehouse run --config /etc/gatehouse/gatehouse.yaml

  # Override listen address
  gatehouse run --listen 0.0.0.0:8080

  # Validate config without starting the server
  gatehouse run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Account store and sweeper.
	store := accounts.NewStore(cfg.Fallback.Cooldown)
	for _, p := range cfg.Providers {
		for _, a := range p.Accounts {
			if err := store.Add(accounts.Account{
				ID:         a.ID,
				Provider:   p.Name,
				Credential: a.APIKey,
			}); err != nil {
				return fmt.Errorf("failed to register account: %w", err)
			}
		}
	}
	sweeper := accounts.NewSweeper(store, cfg.Fallback.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start account sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Upstream executor.
	exec := upstream.NewHTTPExecutor(providerConfigs(cfg))

	// Model resolver.
	resolver := modelmap.NewResolver(cfg.Models.DefaultProvider, aliasTable(cfg))
	defer resolver.Close()

	// Metrics and orchestrator hooks.
	var m *metrics.Metrics
	var orchOpts []fallback.Option
	orchOpts = append(orchOpts,
		fallback.WithAttemptTimeout(cfg.Fallback.AttemptTimeout),
		fallback.WithRefreshTimeout(cfg.Fallback.RefreshTimeout),
	)
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		orchOpts = append(orchOpts, fallback.WithHooks(fallback.Hooks{
			OnAttempt: func(a fallback.Attempt) {
				m.RecordAttempt(a.Target.Provider, a.Outcome.String())
				if a.Outcome == fallback.OutcomeModelFatal {
					m.RecordFallbackAdvance(a.Target.Provider, a.Target.Model)
				}
			},
			OnRefresh: func(a fallback.Account) {
				m.RecordRefresh(a.Provider)
			},
		}))
	}
	orch := fallback.NewOrchestrator(exec, store, orchOpts...)

	// Usage sink and retention.
	sink, pruner, err := buildUsageSink(cfg, m)
	if err != nil {
		return err
	}
	if pruner != nil {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if err := pruner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start usage pruner: %w", err)
		}
		defer pruner.Stop()
	}

	core, err := chat.NewCore(chat.CoreConfig{
		Registry:        format.NewDefaultRegistry(),
		Resolver:        resolver,
		Orchestrator:    orch,
		ProviderFormats: providerFormats(cfg),
		Sink:            sink,
	})
	if err != nil {
		return fmt.Errorf("failed to build request pipeline: %w", err)
	}

	// Hot-reload the alias table on config changes.
	watcher, err := config.NewWatcher(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	watchCtx, cancelWatch := context.WithCancel(cmd.Context())
	defer cancelWatch()
	go watcher.Watch(watchCtx, func(next *config.Config) {
		resolver.SetTable(aliasTable(next))
		logger.Info("alias table hot-reloaded")
	})

	printBanner(cfg)

	srv := server.New(cfg.Server, core, server.Options{
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
	})
	return srv.Start(cmd.Context())
}

// providerConfigs converts configuration providers into executor configs.
func providerConfigs(cfg *config.Config) []upstream.ProviderConfig {
	out := make([]upstream.ProviderConfig, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out = append(out, upstream.ProviderConfig{
			Name:       p.Name,
			BaseURL:    p.BaseURL,
			Format:     format.Format(p.Format),
			RefreshURL: p.RefreshURL,
		})
	}
	return out
}

// providerFormats maps provider names to their upstream dialects.
func providerFormats(cfg *config.Config) map[string]format.Format {
	out := make(map[string]format.Format, len(cfg.Providers))
	for _, p := range cfg.Providers {
		out[p.Name] = format.Format(p.Format)
	}
	return out
}

// aliasTable converts the configured aliases into resolver targets.
func aliasTable(cfg *config.Config) map[string][]fallback.Target {
	table := make(map[string][]fallback.Target, len(cfg.Models.Aliases))
	for name, chain := range cfg.Models.Aliases {
		targets := make([]fallback.Target, 0, len(chain))
		for _, t := range chain {
			targets = append(targets, fallback.Target{Provider: t.Provider, Model: t.Model})
		}
		table[name] = targets
	}
	return table
}

// buildUsageSink assembles the usage pipeline: the SQLite sink when enabled,
// the log sink otherwise, wrapped with token metrics when metrics are on.
func buildUsageSink(cfg *config.Config, m *metrics.Metrics) (usage.Sink, *retention.Pruner, error) {
	var sink usage.Sink = usage.NewLogSink()
	var pruner *retention.Pruner

	if cfg.Usage.Enabled {
		sqlite, err := usage.NewSQLiteSink(usage.SQLiteSinkConfig{Path: cfg.Usage.SQLitePath})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open usage database: %w", err)
		}
		sink = sqlite
		pruner = retention.NewPruner(sqlite, &retention.Config{
			RetentionDays: cfg.Usage.RetentionDays,
			PruneSchedule: cfg.Usage.PruneSchedule,
		})
	}

	if m != nil {
		sink = &meteredSink{next: sink, metrics: m}
	}
	return sink, pruner, nil
}

// meteredSink feeds token metrics before delegating to the real sink.
type meteredSink struct {
	next    usage.Sink
	metrics *metrics.Metrics
}

func (s *meteredSink) Record(ctx context.Context, rec usage.Record) error {
	s.metrics.RecordTokens(rec.Provider, rec.Model,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens)
	return s.next.Record(ctx, rec)
}

// printBanner prints the startup summary.
func printBanner(cfg *config.Config) {
	fmt.Printf("Gatehouse %s\n", Version)
	fmt.Printf("  listen:    %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  providers: %d\n", len(cfg.Providers))
	fmt.Printf("  aliases:   %d\n", len(cfg.Models.Aliases))
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.Usage.Enabled {
		fmt.Printf("  usage db:  %s\n", cfg.Usage.SQLitePath)
	}
}
