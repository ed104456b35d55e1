package storage

import (
	"context"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *SqliteLedger {
	t.Helper()
	ledger, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestRecordAndSummarize(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	records := []UsageRecord{
		{RequestID: "req-1", Provider: "openai", Model: "gpt-5.2", Success: true, TokensUsed: 120, DurationMs: 900},
		{RequestID: "req-1", Provider: "anthropic", Model: "claude-opus-4-5-20251101", Success: true, TokensUsed: 200, DurationMs: 1100},
		{RequestID: "req-2", Provider: "openai", Model: "gpt-5.2", Success: false, ErrorKind: "rate_limited"},
	}
	for _, rec := range records {
		if err := ledger.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	summaries, err := ledger.Summarize(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(summaries))
	}

	// Sorted by provider name
	anthropic, openai := summaries[0], summaries[1]
	if anthropic.Provider != "anthropic" || openai.Provider != "openai" {
		t.Fatalf("unexpected provider order: %q, %q", anthropic.Provider, openai.Provider)
	}
	if anthropic.TotalCalls != 1 || anthropic.Succeeded != 1 || anthropic.TotalTokens != 200 {
		t.Errorf("anthropic summary wrong: %+v", anthropic)
	}
	if openai.TotalCalls != 2 || openai.Succeeded != 1 || openai.Failed != 1 || openai.TotalTokens != 120 {
		t.Errorf("openai summary wrong: %+v", openai)
	}
}

func TestSummarizeEmptyLedger(t *testing.T) {
	ledger := newTestLedger(t)

	summaries, err := ledger.Summarize(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected no summaries, got %d", len(summaries))
	}
}

func TestSummarizeSinceCutoff(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Record(ctx, UsageRecord{RequestID: "r", Provider: "gemini", Success: true, TokensUsed: 40}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Cutoff in the future excludes the record just written.
	summaries, err := ledger.Summarize(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected cutoff to exclude records, got %d summaries", len(summaries))
	}
}

func TestOpenSqliteCreatesDirectories(t *testing.T) {
	path := t.TempDir() + "/nested/dir/usage.db"
	ledger, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	defer ledger.Close()

	if err := ledger.Record(context.Background(), UsageRecord{RequestID: "r", Provider: "openai", Success: true}); err != nil {
		t.Errorf("Record on file-backed ledger failed: %v", err)
	}
}
