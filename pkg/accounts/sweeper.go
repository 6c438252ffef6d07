package accounts

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically restores cooled-down accounts whose cooldown lapsed.
// Lazy expiry in CandidatesFor already handles the request path; the sweeper
// exists so parked accounts return to the diagnostics snapshot even on an
// idle provider.
type Sweeper struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	logger   *slog.Logger
}

// DefaultSweepSchedule runs the sweep every minute.
const DefaultSweepSchedule = "* * * * *"

// NewSweeper creates a sweeper over the store. An empty schedule falls back
// to DefaultSweepSchedule.
func NewSweeper(store *Store, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "accounts.sweeper"),
	}
}

// Start begins scheduled sweeping.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule account sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("account sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("account sweeper stopped")
}

func (s *Sweeper) sweep() {
	if restored := s.store.restoreExpired(); restored > 0 {
		s.logger.Info("restored cooled-down accounts", "count", restored)
	}
}
