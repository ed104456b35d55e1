// Orchestrator - single-request fan-out across providers.
//
// Information Hiding:
// - Admission/breaker gating sequence hidden behind CallProvider
// - Chunked-call accounting hidden
// - Fan-out scheduling and result reordering hidden behind Analyze

package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/richinex/parallax/breaker"
	"github.com/richinex/parallax/chunker"
	"github.com/richinex/parallax/model"
	"github.com/richinex/parallax/ratelimit"
)

// Orchestrator coordinates concurrent provider calls for one request at a
// time, sharing process-wide rate-limit and breaker registries across
// requests. Safe for concurrent use.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator over shared resilience registries.
func NewOrchestrator(limiter *ratelimit.Limiter, breakers *breaker.Registry, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.CallerScope == "" {
		cfg.CallerScope = DefaultConfig().CallerScope
	}
	return &Orchestrator{
		limiter:  limiter,
		breakers: breakers,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// WithLogger attaches a structured logger for per-call diagnostics.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// Reset clears all admission and breaker state. Administrative use only;
// no other side effects.
func (o *Orchestrator) Reset() {
	o.limiter.Reset()
	o.breakers.Reset()
}

// Analyze fans text out to every provider spec, fully isolating each
// provider's outcome from its siblings. Results come back in spec order,
// not completion order.
//
// If ctx is canceled the whole request is voided: Analyze returns the
// context error and no results, discarding any calls that had already
// completed.
func (o *Orchestrator) Analyze(ctx context.Context, text string, specs []ProviderSpec) ([]model.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]model.AnalysisResult, len(specs))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec ProviderSpec) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			results[i] = o.CallProvider(ctx, text, spec)
		}(i, spec)
	}
	wg.Wait()

	// A canceled request produces no result sequence at all.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// CallProvider runs the full single-provider path: admission, circuit
// breaker, optional chunking, then the adapter call. All failures are
// captured in the returned result, never raised.
func (o *Orchestrator) CallProvider(ctx context.Context, text string, spec ProviderSpec) model.AnalysisResult {
	result := model.AnalysisResult{
		Provider: spec.ID,
		Model:    spec.Adapter.Model(),
	}

	decision := o.limiter.Admit(o.cfg.CallerScope + ":" + spec.ID)
	if !decision.Allowed {
		result.Error = fmt.Sprintf("rate_limited: %s", decision.Reason)
		o.logger.Debug("admission denied",
			"provider", spec.ID,
			"reason", decision.Reason,
			"retry_after", decision.RetryAfter)
		return result
	}

	if err := o.breakers.Allow(spec.ID); err != nil {
		result.Error = errCircuitOpen
		o.logger.Debug("breaker rejected call", "provider", spec.ID)
		return result
	}

	// The breaker permitted this call; exactly one Record follows.
	response, tokens, err := o.callWithChunking(ctx, text, spec)
	o.breakers.Record(spec.ID, err == nil)
	if err != nil {
		result.Error = err.Error()
		o.logger.Debug("provider call failed", "provider", spec.ID, "error", err)
		return result
	}

	result.Response = response
	result.TokensUsed = tokens
	return result
}

// callWithChunking splits oversized text per the provider's input limit
// and calls the adapter once per chunk, concatenating responses in chunk
// order and summing token usage. A failure on any chunk aborts the rest.
func (o *Orchestrator) callWithChunking(ctx context.Context, text string, spec ProviderSpec) (string, uint32, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	if spec.InputLimit <= 0 || len([]rune(text)) <= spec.InputLimit {
		completion, err := spec.Adapter.Complete(callCtx, text)
		if err != nil {
			return "", 0, fmt.Errorf("provider call failed: %w", err)
		}
		return completion.Text, completion.Usage.Total(), nil
	}

	chunks, err := chunker.Split(text, o.chunkTarget(spec.InputLimit), o.cfg.ChunkOverlap)
	if err != nil {
		return "", 0, fmt.Errorf("chunking failed: %w", err)
	}

	o.logger.Debug("input exceeds provider limit, chunking",
		"provider", spec.ID,
		"chunks", len(chunks))

	var responses []string
	var tokens uint32
	for _, chunk := range chunks {
		completion, err := spec.Adapter.Complete(callCtx, chunk.Text)
		if err != nil {
			return "", 0, fmt.Errorf("chunk %d/%d failed: %w", chunk.Index+1, chunk.Total, err)
		}
		responses = append(responses, completion.Text)
		tokens += completion.Usage.Total()
	}
	return strings.Join(responses, ""), tokens, nil
}

// chunkTarget picks the chunk size for a provider: the configured target
// capped at the provider's own input limit.
func (o *Orchestrator) chunkTarget(inputLimit int) int {
	target := o.cfg.ChunkTargetSize
	if target <= 0 || target > inputLimit {
		target = inputLimit
	}
	return target
}
