// Package model provides domain types shared across packages.
package model

// AnalysisResult is the per-provider outcome of a fan-out analysis.
// Exactly one of Response or Error is populated once the result is terminal.
type AnalysisResult struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	TokensUsed uint32 `json:"tokens_used,omitempty"`
}

// Succeeded reports whether the result carries a response rather than an error.
func (r AnalysisResult) Succeeded() bool {
	return r.Error == ""
}

// AnalyzeMetadata summarizes a completed fan-out.
type AnalyzeMetadata struct {
	TotalProviders int `json:"total_providers"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
}

// ProviderRequest configures one provider entry in an analysis request.
// Slice order is the enablement order: results come back in this order.
type ProviderRequest struct {
	Provider string `json:"provider" yaml:"provider"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"-" yaml:"-"`
}

// AnalyzeRequest is the request shape exposed to the transport layer.
type AnalyzeRequest struct {
	Text      string            `json:"text"`
	Providers []ProviderRequest `json:"providers"`
}

// AnalyzeResponse is the response shape exposed to the transport layer.
type AnalyzeResponse struct {
	RequestID string           `json:"request_id"`
	Results   []AnalysisResult `json:"results"`
	Metadata  AnalyzeMetadata  `json:"metadata"`
}
