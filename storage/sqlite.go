package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteLedger implements UsageLedger on a SQLite database.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteLedger struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteLedger, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	ledger := &SqliteLedger{db: db}
	if err := ledger.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// NewSqliteInMemory creates an in-memory ledger (useful for testing).
func NewSqliteInMemory() (*SqliteLedger, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	ledger := &SqliteLedger{db: db}
	if err := ledger.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// Close closes the database connection.
func (s *SqliteLedger) Close() error {
	return s.db.Close()
}

func (s *SqliteLedger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS usage_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			success INTEGER NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			recorded_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_provider
		ON usage_log(provider, recorded_at);

		CREATE INDEX IF NOT EXISTS idx_usage_request
		ON usage_log(request_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record appends one call outcome.
func (s *SqliteLedger) Record(ctx context.Context, rec UsageRecord) error {
	var errorKind interface{}
	if rec.ErrorKind != "" {
		errorKind = rec.ErrorKind
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_log
		(request_id, provider, model, success, tokens_used, error_kind, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Provider,
		rec.Model,
		boolToInt(rec.Success),
		rec.TokensUsed,
		errorKind,
		rec.DurationMs,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Summarize aggregates usage per provider since the given time.
func (s *SqliteLedger) Summarize(ctx context.Context, since time.Time) ([]ProviderUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider,
		       COUNT(*),
		       COALESCE(SUM(success), 0),
		       COALESCE(SUM(1 - success), 0),
		       COALESCE(SUM(tokens_used), 0)
		FROM usage_log
		WHERE recorded_at >= ?
		GROUP BY provider
		ORDER BY provider ASC`,
		since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	summaries := []ProviderUsage{} // Start with empty slice, not nil
	for rows.Next() {
		var u ProviderUsage
		if err := rows.Scan(&u.Provider, &u.TotalCalls, &u.Succeeded, &u.Failed, &u.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		summaries = append(summaries, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return summaries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Verify SqliteLedger implements the interface
var _ UsageLedger = (*SqliteLedger)(nil)
