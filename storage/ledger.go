// Package storage provides SQLite-backed usage metering.
//
// Information Hiding:
// - SQLite connection management hidden behind the UsageLedger interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling
//
// The ledger records call outcomes and token counts only. Prompt and
// response bodies never touch the database.

package storage

import (
	"context"
	"time"
)

// UsageRecord is one metered provider call.
type UsageRecord struct {
	RequestID  string
	Provider   string
	Model      string
	Success    bool
	TokensUsed uint32
	ErrorKind  string
	DurationMs int64
}

// ProviderUsage aggregates metered calls for one provider.
type ProviderUsage struct {
	Provider    string
	TotalCalls  int64
	Succeeded   int64
	Failed      int64
	TotalTokens int64
}

// UsageLedger meters provider call outcomes.
type UsageLedger interface {
	// Record appends one call outcome.
	Record(ctx context.Context, rec UsageRecord) error

	// Summarize aggregates usage per provider since the given time.
	// A zero time means all recorded history.
	Summarize(ctx context.Context, since time.Time) ([]ProviderUsage, error)

	Close() error
}
