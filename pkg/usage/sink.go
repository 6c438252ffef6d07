package usage

import (
	"context"
	"log/slog"
	"time"
)

// Record is one completed request's usage, reported to a Sink.
type Record struct {
	// RequestID is the gateway-assigned request identifier
	RequestID string

	// Provider is the upstream provider that served the request
	Provider string

	// Model is the upstream model that served the request
	Model string

	// AccountID is the provider account that served the request
	AccountID string

	// Streamed reports whether the client received a streamed response
	Streamed bool

	// Usage is the extracted token usage
	Usage TokenUsage

	// CompletedAt is when the response finished
	CompletedAt time.Time
}

// Sink receives usage records for accounting. Recording is fire-and-forget
// from the request path: a sink failure must never fail the client response.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// NopSink discards all records.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Record) error { return nil }

// LogSink writes records to the structured log. Useful when no persistent
// store is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each record at info level.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "usage.sink")}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, rec Record) error {
	s.logger.Info("request usage",
		"request_id", rec.RequestID,
		"provider", rec.Provider,
		"model", rec.Model,
		"account_id", rec.AccountID,
		"streamed", rec.Streamed,
		"prompt_tokens", rec.Usage.PromptTokens,
		"completion_tokens", rec.Usage.CompletionTokens,
		"total_tokens", rec.Usage.TotalTokens,
		"cached_tokens", rec.Usage.CachedTokens,
	)
	return nil
}
