// Package llm provides shared data models for LLM providers.
package llm

// Completion represents a completed single-prompt request.
type Completion struct {
	Text  string
	Usage *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Total returns the total token count, tolerating a nil receiver so
// callers can sum usage without checking for absent metadata.
func (u *TokenUsage) Total() uint32 {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
