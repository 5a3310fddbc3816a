package registry

import (
	"time"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Candidate is one queryable (provider, model) pair. Tunable attributes
// come from registration; live attributes are derived from dispatcher
// feedback and only meaningful on snapshots returned by the registry.
type Candidate struct {
	Provider    schema.Provider `json:"provider"`
	Model       string          `json:"model"`
	Weight      float64         `json:"weight"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`

	Available    bool    `json:"available"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	CostPerToken float64 `json:"cost_per_token"`
}

// Key returns the composite registry key.
func (c Candidate) Key() schema.Key {
	return schema.NewKey(c.Provider, c.Model)
}

// Score ranks a candidate for selection. Zero latency and zero cost
// contribute a factor of one, so unknown history carries no penalty.
func Score(c Candidate) float64 {
	score := c.Weight * c.SuccessRate
	if c.AvgLatencyMs > 0 {
		score *= 1 / (1 + c.AvgLatencyMs/1000)
	}
	if c.CostPerToken > 0 {
		score *= 1 / (1 + c.CostPerToken)
	}
	return score
}

// CandidateStats is the persistable slice of one candidate's live
// statistics. Window holds the most recent outcomes, oldest first.
type CandidateStats struct {
	Key          schema.Key `json:"key"`
	AvgLatencyMs float64    `json:"avg_latency_ms"`
	HasLatency   bool       `json:"has_latency"`
	Window       []bool     `json:"window"`
	Available    bool       `json:"available"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
