// Package llm provides LLM provider abstractions.
//
// Provider is the uniform adapter interface consumed by the orchestration
// engine. Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing a
// consistent single-prompt completion interface.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Complete sends a single-prompt completion request. Any transport,
	// vendor, or timeout failure surfaces as the returned error; callers
	// treat all adapter errors uniformly.
	Complete(ctx context.Context, prompt string) (Completion, error)
}
