// Service - the request/response boundary exposed to the transport layer.
//
// Validates incoming analysis requests, resolves provider adapters,
// delegates to the Orchestrator, and aggregates response metadata.

package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/parallax/llm"
	"github.com/richinex/parallax/model"
	"github.com/richinex/parallax/storage"
)

// ValidationError reports a malformed analysis request. It is fatal to
// the request and surfaced immediately, before any provider work starts.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// AdapterResolver turns a provider request into a callable adapter.
// The default resolver builds real vendor adapters via the llm factory;
// tests substitute fakes.
type AdapterResolver func(req model.ProviderRequest) (llm.Provider, error)

// DefaultResolver builds vendor adapters from the llm factory, reading
// API keys from the request or the environment.
func DefaultResolver(req model.ProviderRequest) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(req.Provider)
	if err != nil {
		return nil, err
	}
	builder := llm.NewProviderBuilder(providerType)
	if req.Model != "" {
		builder.Model(req.Model)
	}
	if req.APIKey != "" {
		return builder.APIKey(req.APIKey)
	}
	return builder.FromEnv()
}

// Service wraps an Orchestrator with request validation and metadata
// aggregation. Created once at process start.
type Service struct {
	orch        *Orchestrator
	resolver    AdapterResolver
	maxTextLen  int
	inputLimits map[string]int
	ledger      storage.UsageLedger
}

// NewService creates the analysis service. maxTextLen bounds request text
// in code points; inputLimits maps provider IDs to their per-call input
// limits (absent entries mean unlimited).
func NewService(orch *Orchestrator, maxTextLen int, inputLimits map[string]int) *Service {
	return &Service{
		orch:        orch,
		resolver:    DefaultResolver,
		maxTextLen:  maxTextLen,
		inputLimits: inputLimits,
	}
}

// WithResolver overrides adapter construction (test isolation).
func (s *Service) WithResolver(resolver AdapterResolver) *Service {
	s.resolver = resolver
	return s
}

// WithLedger enables usage metering: per-call outcomes and token counts
// are recorded after each fan-out. Response bodies are never stored.
func (s *Service) WithLedger(ledger storage.UsageLedger) *Service {
	s.ledger = ledger
	return s
}

// Analyze validates the request, fans it out, and aggregates metadata.
// Per-provider failures are reported as data in the results; only
// validation and caller cancellation abort the request.
func (s *Service) Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	specs, err := s.resolveSpecs(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results, err := s.orch.Analyze(ctx, req.Text, specs)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	metadata := model.AnalyzeMetadata{TotalProviders: len(results)}
	for _, r := range results {
		if r.Succeeded() {
			metadata.Succeeded++
		} else {
			metadata.Failed++
		}
	}

	s.recordUsage(ctx, requestID, results, time.Since(started))

	return &model.AnalyzeResponse{
		RequestID: requestID,
		Results:   results,
		Metadata:  metadata,
	}, nil
}

// Reset clears all shared admission and breaker state.
func (s *Service) Reset() {
	s.orch.Reset()
}

func (s *Service) validate(req model.AnalyzeRequest) error {
	if req.Text == "" {
		return &ValidationError{Reason: "text must not be empty"}
	}
	if s.maxTextLen > 0 && len([]rune(req.Text)) > s.maxTextLen {
		return &ValidationError{Reason: fmt.Sprintf("text exceeds maximum length of %d code points", s.maxTextLen)}
	}
	enabled := 0
	for _, p := range req.Providers {
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return &ValidationError{Reason: "at least one provider must be enabled"}
	}
	return nil
}

// resolveSpecs builds provider specs for enabled entries, preserving the
// caller's enablement order. Resolution failures are fatal: they indicate
// misconfiguration, not a runtime provider condition.
func (s *Service) resolveSpecs(req model.AnalyzeRequest) ([]ProviderSpec, error) {
	var specs []ProviderSpec
	for _, p := range req.Providers {
		if !p.Enabled {
			continue
		}
		adapter, err := s.resolver(p)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("provider %q: %v", p.Provider, err)}
		}
		specs = append(specs, ProviderSpec{
			ID:         p.Provider,
			Adapter:    adapter,
			InputLimit: s.inputLimits[p.Provider],
		})
	}
	return specs, nil
}

// recordUsage meters call outcomes to the ledger, best effort.
func (s *Service) recordUsage(ctx context.Context, requestID string, results []model.AnalysisResult, elapsed time.Duration) {
	if s.ledger == nil {
		return
	}
	for _, r := range results {
		_ = s.ledger.Record(ctx, storage.UsageRecord{
			RequestID:  requestID,
			Provider:   r.Provider,
			Model:      r.Model,
			Success:    r.Succeeded(),
			TokensUsed: r.TokensUsed,
			ErrorKind:  errorKind(r.Error),
			DurationMs: elapsed.Milliseconds(),
		})
	}
}

// errorKind maps a result error string to a coarse taxonomy bucket for
// metering; full messages never reach the ledger.
func errorKind(errStr string) string {
	switch {
	case errStr == "":
		return ""
	case errStr == errCircuitOpen:
		return "circuit_open"
	case strings.HasPrefix(errStr, "rate_limited"):
		return "rate_limited"
	default:
		return "provider_error"
	}
}
