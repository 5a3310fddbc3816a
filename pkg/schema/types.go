package schema

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies one backend operator.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderMock      Provider = "mock"
)

// KnownProviders lists every supported backend provider.
func KnownProviders() []Provider {
	return []Provider{
		ProviderAnthropic,
		ProviderOpenAI,
		ProviderGoogle,
		ProviderDeepSeek,
		ProviderMock,
	}
}

// ParseProvider resolves a provider name, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek, ProviderMock:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}

// ConsensusStrategy selects the reduction algorithm applied to the
// collected responses.
type ConsensusStrategy string

const (
	StrategyMajority  ConsensusStrategy = "majority"
	StrategyWeighted  ConsensusStrategy = "weighted"
	StrategyUnanimous ConsensusStrategy = "unanimous"
	StrategyBestOfN   ConsensusStrategy = "best_of_n"
	StrategyHybrid    ConsensusStrategy = "hybrid"
)

// Strategies lists every supported consensus strategy.
func Strategies() []ConsensusStrategy {
	return []ConsensusStrategy{
		StrategyMajority,
		StrategyWeighted,
		StrategyUnanimous,
		StrategyBestOfN,
		StrategyHybrid,
	}
}

// ParseStrategy resolves a strategy name, case-insensitively.
func ParseStrategy(name string) (ConsensusStrategy, error) {
	s := ConsensusStrategy(strings.ToLower(strings.TrimSpace(name)))
	if !isStrategyAllowed(s) {
		return "", fmt.Errorf("unknown consensus strategy %q", name)
	}
	return s, nil
}

// FinishReason is the normalized completion reason reported by a backend.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishLength   FinishReason = "length"
	FinishFiltered FinishReason = "filtered"
	FinishUnknown  FinishReason = "unknown"
)

// Key identifies one (provider, model) candidate as "provider/model".
type Key string

// NewKey builds the composite candidate key.
func NewKey(provider Provider, model string) Key {
	return Key(string(provider) + "/" + model)
}

// Split returns the provider and model halves of the key. The model half
// is empty when the key carries no separator.
func (k Key) Split() (Provider, string) {
	p, m, ok := strings.Cut(string(k), "/")
	if !ok {
		return Provider(p), ""
	}
	return Provider(p), m
}

// Metadata keys stamped on responses and results.
const (
	MetaRequestID    = "request_id"
	MetaFinishReason = "finish_reason"
	MetaTokensIn     = "tokens_in"
	MetaTokensOut    = "tokens_out"
)

// RoutingRequest is one logical call to route across providers.
type RoutingRequest struct {
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	// ExplicitModels bypasses scoring: the listed candidates are used
	// as given, in order.
	ExplicitModels []Key `json:"explicit_models,omitempty"`
	// Exclude removes candidate keys from selection. Callers retrying a
	// failed route grow this from the previous attempt's failures.
	Exclude      []Key             `json:"exclude,omitempty"`
	Strategy     ConsensusStrategy `json:"strategy,omitempty"`
	MinResponses int               `json:"min_responses,omitempty"`
	MaxResponses int               `json:"max_responses,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request after defaults have been applied.
func (r *RoutingRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt required")
	}
	if r.MinResponses < 1 {
		return fmt.Errorf("min_responses must be at least 1, got %d", r.MinResponses)
	}
	if r.MaxResponses < r.MinResponses {
		return fmt.Errorf("max_responses %d below min_responses %d", r.MaxResponses, r.MinResponses)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", r.Timeout)
	}
	if !isStrategyAllowed(r.Strategy) {
		return fmt.Errorf("unknown consensus strategy %q", r.Strategy)
	}
	return nil
}

// AIResponse is one backend's answer to one dispatched attempt.
type AIResponse struct {
	Provider   Provider      `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Latency    time.Duration `json:"latency"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	// Confidence is derived once by the dispatcher and never recomputed
	// downstream.
	Confidence float64 `json:"confidence"`
	// CandidateIndex is the response's position in the original candidate
	// selection order. Consensus tie-breaks depend on it, never on
	// arrival order.
	CandidateIndex int               `json:"candidate_index"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Key returns the composite key of the candidate that produced the response.
func (r *AIResponse) Key() Key {
	return NewKey(r.Provider, r.Model)
}

// DispatchError records one candidate's failure without aborting its siblings.
type DispatchError struct {
	Key      Key      `json:"key"`
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
	Reason   string   `json:"reason"`
	Err      error    `json:"-"`
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "dispatch error"
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConsensusResult is the reduced output of one routing call.
type ConsensusResult struct {
	FinalText      string  `json:"final_text"`
	Confidence     float64 `json:"confidence"`
	AgreementRatio float64 `json:"agreement_ratio"`
	// ParticipatingModels lists every dispatched candidate key in
	// selection order, including candidates whose call failed.
	ParticipatingModels []Key `json:"participating_models"`
	// IndividualResponses holds every successful response, for audit.
	IndividualResponses []AIResponse      `json:"individual_responses"`
	StrategyUsed        ConsensusStrategy `json:"strategy_used"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
}

// Validate checks the result invariants: the agreement ratio stays in
// [0,1] and the final text is drawn verbatim from one of the individual
// responses.
func (c *ConsensusResult) Validate() error {
	if c.AgreementRatio < 0 || c.AgreementRatio > 1 {
		return fmt.Errorf("agreement_ratio %v outside [0,1]", c.AgreementRatio)
	}
	if !isStrategyAllowed(c.StrategyUsed) {
		return fmt.Errorf("unknown consensus strategy %q", c.StrategyUsed)
	}
	for i := range c.IndividualResponses {
		if c.IndividualResponses[i].Text == c.FinalText {
			return nil
		}
	}
	return fmt.Errorf("final_text not drawn from individual responses")
}

func isStrategyAllowed(strategy ConsensusStrategy) bool {
	switch strategy {
	case StrategyMajority, StrategyWeighted, StrategyUnanimous, StrategyBestOfN, StrategyHybrid:
		return true
	default:
		return false
	}
}
