package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/parallax/breaker"
	"github.com/richinex/parallax/llm"
	"github.com/richinex/parallax/ratelimit"
)

// fakeProvider is a scripted adapter for fan-out tests.
type fakeProvider struct {
	name  string
	model string

	mu      sync.Mutex
	prompts []string
	fn      func(ctx context.Context, prompt string) (llm.Completion, error)
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, prompt)
	}
	return llm.Completion{
		Text:  "echo: " + prompt,
		Usage: &llm.TokenUsage{TotalTokens: uint32(len(prompt))},
	}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

var _ llm.Provider = (*fakeProvider)(nil)

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	limiter := ratelimit.MustNew(ratelimit.DefaultConfig())
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	return NewOrchestrator(limiter, breakers, cfg)
}

func TestAnalyzeIsolatesProviderFailures(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())

	specs := []ProviderSpec{
		{ID: "openai", Adapter: &fakeProvider{name: "openai", model: "gpt-5.2"}},
		{ID: "anthropic", Adapter: &fakeProvider{
			name: "anthropic", model: "claude-opus-4-5-20251101",
			fn: func(context.Context, string) (llm.Completion, error) {
				return llm.Completion{}, errors.New("upstream 500")
			},
		}},
		{ID: "gemini", Adapter: &fakeProvider{name: "gemini", model: "gemini-flash-3"}},
	}

	results, err := orch.Analyze(context.Background(), "analyze this", specs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Results preserve input order regardless of completion order.
	assert.Equal(t, "openai", results[0].Provider)
	assert.Equal(t, "anthropic", results[1].Provider)
	assert.Equal(t, "gemini", results[2].Provider)

	assert.True(t, results[0].Succeeded())
	assert.Equal(t, "echo: analyze this", results[0].Response)

	assert.False(t, results[1].Succeeded())
	assert.Contains(t, results[1].Error, "upstream 500")
	assert.Empty(t, results[1].Response)

	assert.True(t, results[2].Succeeded())
}

func TestAnalyzeCanceledContextVoidsRequest(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := orch.Analyze(ctx, "text", []ProviderSpec{
		{ID: "openai", Adapter: &fakeProvider{name: "openai", model: "gpt-5.2"}},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestAnalyzeCancellationMidFlightDiscardsCompletedResults(t *testing.T) {
	orch := newTestOrchestrator(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	slow := &fakeProvider{name: "anthropic", model: "claude-opus-4-5-20251101",
		fn: func(context.Context, string) (llm.Completion, error) {
			cancel()
			return llm.Completion{Text: "done anyway"}, nil
		},
	}

	results, err := orch.Analyze(ctx, "text", []ProviderSpec{
		{ID: "anthropic", Adapter: slow},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestCallProviderRateLimitDenialIsResultData(t *testing.T) {
	limiter := ratelimit.MustNew(ratelimit.Config{
		PerMinute:       1,
		PerHour:         100,
		PerDay:          1000,
		BucketCapacity:  100,
		RefillPerSecond: 10,
	})
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	orch := NewOrchestrator(limiter, breakers, DefaultConfig())

	adapter := &fakeProvider{name: "openai", model: "gpt-5.2"}
	spec := ProviderSpec{ID: "openai", Adapter: adapter}

	first := orch.CallProvider(context.Background(), "hi", spec)
	require.True(t, first.Succeeded())

	second := orch.CallProvider(context.Background(), "hi", spec)
	assert.False(t, second.Succeeded())
	assert.True(t, strings.HasPrefix(second.Error, "rate_limited:"), "error was %q", second.Error)

	// The denied call never reached the adapter.
	assert.Equal(t, 1, adapter.callCount())
}

func TestCallProviderCircuitOpenSkipsAdapter(t *testing.T) {
	limiter := ratelimit.MustNew(ratelimit.DefaultConfig())
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Minute})
	orch := NewOrchestrator(limiter, breakers, DefaultConfig())

	adapter := &fakeProvider{name: "openai", model: "gpt-5.2",
		fn: func(context.Context, string) (llm.Completion, error) {
			return llm.Completion{}, errors.New("boom")
		},
	}
	spec := ProviderSpec{ID: "openai", Adapter: adapter}

	first := orch.CallProvider(context.Background(), "hi", spec)
	require.False(t, first.Succeeded())
	require.Equal(t, breaker.StateOpen, breakers.State("openai"))

	second := orch.CallProvider(context.Background(), "hi", spec)
	assert.Equal(t, "circuit_open", second.Error)
	assert.Equal(t, 1, adapter.callCount())
}

func TestCallTimeoutFailsSlowProviderOnly(t *testing.T) {
	limiter := ratelimit.MustNew(ratelimit.DefaultConfig())
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Minute})
	cfg := DefaultConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	orch := NewOrchestrator(limiter, breakers, cfg)

	slow := &fakeProvider{name: "anthropic", model: "claude-opus-4-5-20251101",
		fn: func(ctx context.Context, _ string) (llm.Completion, error) {
			select {
			case <-ctx.Done():
				return llm.Completion{}, ctx.Err()
			case <-time.After(2 * time.Second):
				return llm.Completion{Text: "late"}, nil
			}
		},
	}
	fast := &fakeProvider{name: "openai", model: "gpt-5.2"}

	results, err := orch.Analyze(context.Background(), "text", []ProviderSpec{
		{ID: "anthropic", Adapter: slow},
		{ID: "openai", Adapter: fast},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Succeeded())
	assert.Contains(t, results[0].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, breaker.StateOpen, breakers.State("anthropic"))

	assert.True(t, results[1].Succeeded())
	assert.Equal(t, breaker.StateClosed, breakers.State("openai"))
}

func TestCallProviderChunksOversizedInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkTargetSize = 10
	cfg.ChunkOverlap = 2
	orch := newTestOrchestrator(t, cfg)

	adapter := &fakeProvider{name: "openai", model: "gpt-5.2",
		fn: func(_ context.Context, prompt string) (llm.Completion, error) {
			return llm.Completion{
				Text:  fmt.Sprintf("[%d]", len(prompt)),
				Usage: &llm.TokenUsage{TotalTokens: 5},
			}, nil
		},
	}
	text := strings.Repeat("x", 25)
	spec := ProviderSpec{ID: "openai", Adapter: adapter, InputLimit: 10}

	result := orch.CallProvider(context.Background(), text, spec)
	require.True(t, result.Succeeded(), "error: %s", result.Error)

	calls := adapter.callCount()
	assert.Greater(t, calls, 1, "oversized input should be chunked")
	assert.Equal(t, uint32(5*calls), result.TokensUsed)
	// One bracketed segment per chunk, in order.
	assert.Equal(t, calls, strings.Count(result.Response, "["))
}

func TestCallProviderShortInputSkipsChunking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkTargetSize = 10
	cfg.ChunkOverlap = 2
	orch := newTestOrchestrator(t, cfg)

	adapter := &fakeProvider{name: "openai", model: "gpt-5.2"}
	spec := ProviderSpec{ID: "openai", Adapter: adapter, InputLimit: 100}

	result := orch.CallProvider(context.Background(), "short text", spec)
	require.True(t, result.Succeeded())
	assert.Equal(t, 1, adapter.callCount())
}

func TestChunkedCallRecordsOneBreakerOutcome(t *testing.T) {
	limiter := ratelimit.MustNew(ratelimit.DefaultConfig())
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 2, Cooldown: time.Minute})
	cfg := DefaultConfig()
	cfg.ChunkTargetSize = 10
	cfg.ChunkOverlap = 2
	orch := NewOrchestrator(limiter, breakers, cfg)

	adapter := &fakeProvider{name: "openai", model: "gpt-5.2",
		fn: func(context.Context, string) (llm.Completion, error) {
			return llm.Completion{}, errors.New("boom")
		},
	}
	text := strings.Repeat("x", 50)
	spec := ProviderSpec{ID: "openai", Adapter: adapter, InputLimit: 10}

	result := orch.CallProvider(context.Background(), text, spec)
	require.False(t, result.Succeeded())
	assert.Contains(t, result.Error, "chunk 1/")

	// One failed fan-out call is one breaker failure, not one per chunk.
	assert.Equal(t, breaker.StateClosed, breakers.State("openai"))
}

func TestAnalyzeRespectsConcurrencyBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	orch := newTestOrchestrator(t, cfg)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	fn := func(context.Context, string) (llm.Completion, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return llm.Completion{Text: "ok"}, nil
	}

	var specs []ProviderSpec
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("provider-%d", i)
		specs = append(specs, ProviderSpec{ID: id, Adapter: &fakeProvider{name: id, model: "m", fn: fn}})
	}

	results, err := orch.Analyze(context.Background(), "text", specs)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.True(t, r.Succeeded())
	}
	assert.LessOrEqual(t, peak, 2, "concurrency bound exceeded")
}

func TestResetClearsSharedState(t *testing.T) {
	limiter := ratelimit.MustNew(ratelimit.Config{
		PerMinute:       1,
		PerHour:         100,
		PerDay:          1000,
		BucketCapacity:  100,
		RefillPerSecond: 10,
	})
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, Cooldown: time.Hour})
	orch := NewOrchestrator(limiter, breakers, DefaultConfig())

	failing := &fakeProvider{name: "openai", model: "gpt-5.2",
		fn: func(context.Context, string) (llm.Completion, error) {
			return llm.Completion{}, errors.New("boom")
		},
	}
	spec := ProviderSpec{ID: "openai", Adapter: failing}

	_ = orch.CallProvider(context.Background(), "hi", spec)
	require.Equal(t, breaker.StateOpen, breakers.State("openai"))

	orch.Reset()

	assert.Equal(t, breaker.StateClosed, breakers.State("openai"))
	ok := &fakeProvider{name: "openai", model: "gpt-5.2"}
	result := orch.CallProvider(context.Background(), "hi", ProviderSpec{ID: "openai", Adapter: ok})
	assert.True(t, result.Succeeded())
}
