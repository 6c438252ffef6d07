package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteSinkConfig configures the SQLite usage sink.
type SQLiteSinkConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteSink implements Sink with durable per-request usage rows. Suitable
// for single-instance deployments; WAL mode keeps the request path from
// blocking on readers.
type SQLiteSink struct {
	db        *sql.DB
	insert    *sql.Stmt
	prune     *sql.Stmt
	closeOnce sync.Once
}

// NewSQLiteSink opens (or creates) the usage database and prepares the
// statements the sink needs.
func NewSQLiteSink(cfg SQLiteSinkConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("usage: db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("usage: open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	sink := &SQLiteSink{db: db}
	if err := sink.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: initialize schema: %w", err)
	}
	if err := sink.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: prepare statements: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		request_id TEXT NOT NULL PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		account_id TEXT NOT NULL,
		streamed INTEGER NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens INTEGER NOT NULL,
		cached_tokens INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_completed_at ON usage_records(completed_at);
	CREATE INDEX IF NOT EXISTS idx_usage_provider_model ON usage_records(provider, model);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteSink) prepareStatements() error {
	var err error

	s.insert, err = s.db.Prepare(`
		INSERT OR REPLACE INTO usage_records
			(request_id, provider, model, account_id, streamed,
			 prompt_tokens, completion_tokens, total_tokens, cached_tokens, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	s.prune, err = s.db.Prepare(`DELETE FROM usage_records WHERE completed_at < ?`)
	return err
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, rec Record) error {
	streamed := 0
	if rec.Streamed {
		streamed = 1
	}
	_, err := s.insert.ExecContext(ctx,
		rec.RequestID, rec.Provider, rec.Model, rec.AccountID, streamed,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens,
		rec.Usage.TotalTokens, rec.Usage.CachedTokens,
		rec.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("usage: record request %s: %w", rec.RequestID, err)
	}
	return nil
}

// PruneBefore deletes records completed before the cutoff and returns how
// many rows were removed.
func (s *SQLiteSink) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.prune.ExecContext(ctx, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("usage: prune: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the prepared statements and the database handle.
func (s *SQLiteSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.insert != nil {
			s.insert.Close()
		}
		if s.prune != nil {
			s.prune.Close()
		}
		err = s.db.Close()
	})
	return err
}
