// Package retention prunes old usage records on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gatehouse-hq/gatehouse/pkg/usage"
)

// Config contains configuration for the usage retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain usage records.
	// 0 means keep records forever (no pruning).
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner enforces the retention window on the usage store.
type Pruner struct {
	sink    *usage.SQLiteSink
	config  *Config
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	logger  *slog.Logger
}

// NewPruner creates a retention pruner over a SQLite usage sink.
func NewPruner(sink *usage.SQLiteSink, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		sink:   sink,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "usage.retention"),
	}
}

// Prune deletes records older than the retention window and returns the
// number of rows removed. A zero retention window disables pruning.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)
	return p.sink.PruneBefore(ctx, cutoff)
}

// Start schedules periodic pruning. If PruneSchedule is empty the scheduler
// does nothing. The scheduler stops when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("retention: scheduler already running")
	}
	if p.config.PruneSchedule == "" || p.config.RetentionDays <= 0 {
		p.logger.Info("usage retention not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.config.PruneSchedule); err != nil {
		return fmt.Errorf("retention: invalid cron schedule %q: %w", p.config.PruneSchedule, err)
	}

	if _, err := p.cron.AddFunc(p.config.PruneSchedule, func() {
		deleted, err := p.Prune(ctx)
		if err != nil {
			p.logger.Error("scheduled usage pruning failed", "error", err)
			return
		}
		if deleted > 0 {
			p.logger.Info("scheduled usage pruning completed", "deleted_count", deleted)
		}
	}); err != nil {
		return fmt.Errorf("retention: schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("usage retention scheduler started",
		"schedule", p.config.PruneSchedule,
		"retention_days", p.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
	p.logger.Info("usage retention scheduler stopped")
}
