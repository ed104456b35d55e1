// Package orchestration fans a single analysis request out to multiple
// LLM providers, applying admission control, circuit breaking, and
// chunking per provider, and aggregating results deterministically.
package orchestration

import (
	"time"

	"github.com/richinex/parallax/llm"
)

// ProviderSpec configures one provider in a fan-out. Slice order across
// specs is the caller's enablement order and determines result order.
type ProviderSpec struct {
	// ID is the provider identifier used for rate-limit keys, breaker
	// state, and result attribution.
	ID string

	// Adapter performs the actual completion call.
	Adapter llm.Provider

	// InputLimit is the maximum prompt length in code points before the
	// text is chunked. Zero means no limit.
	InputLimit int
}

// Config holds the orchestrator's execution parameters.
type Config struct {
	// MaxConcurrent bounds simultaneous outbound provider calls.
	MaxConcurrent int

	// CallTimeout is the per-provider deadline. A timed-out call counts
	// as a failure for circuit-breaker purposes.
	CallTimeout time.Duration

	// ChunkTargetSize and ChunkOverlap configure oversized-input
	// splitting, in code points.
	ChunkTargetSize int
	ChunkOverlap    int

	// CallerScope prefixes rate-limit keys so distinct callers can share
	// one registry without contending on limits.
	CallerScope string
}

// DefaultConfig returns execution parameters suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   4,
		CallTimeout:     60 * time.Second,
		ChunkTargetSize: 8000,
		ChunkOverlap:    200,
		CallerScope:     "default",
	}
}

// Error strings recorded on per-provider results. These are data, not
// control flow: one provider's entry never affects its siblings.
const (
	errCircuitOpen = "circuit_open"
)
