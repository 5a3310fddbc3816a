package backend

import (
	"strings"

	"github.com/zen-systems/quorum/pkg/schema"
)

// defaultMaxTokens applies when a request does not cap the completion.
const defaultMaxTokens = 4096

// Request carries one generation call to a backend.
type Request struct {
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// maxTokensOrDefault returns the request cap, falling back to the
// package default when unset.
func (r Request) maxTokensOrDefault() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// Result is the raw outcome of one backend call.
type Result struct {
	Text         string              `json:"text"`
	TokensIn     int                 `json:"tokens_in"`
	TokensOut    int                 `json:"tokens_out"`
	FinishReason schema.FinishReason `json:"finish_reason"`
}

// TotalTokens returns the combined prompt and completion token count.
func (r *Result) TotalTokens() int {
	return r.TokensIn + r.TokensOut
}

// normalizeFinishReason maps provider-specific completion reasons onto
// the shared vocabulary.
func normalizeFinishReason(raw string) schema.FinishReason {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "stop", "end_turn", "stop_sequence", "eos", "complete":
		return schema.FinishStop
	case "length", "max_tokens", "max_output_tokens":
		return schema.FinishLength
	case "content_filter", "safety", "refusal", "blocklist", "prohibited_content":
		return schema.FinishFiltered
	default:
		return schema.FinishUnknown
	}
}
