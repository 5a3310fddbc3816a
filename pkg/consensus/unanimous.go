package consensus

import "github.com/zen-systems/quorum/pkg/schema"

// unanimous requires every pairwise similarity to meet the threshold.
// When the set splits, it falls back to the majority selection but
// reports zero agreement, keeping the majority ratio in metadata.
func (e *Engine) unanimous(responses []schema.AIResponse) *schema.ConsensusResult {
	if allPairwiseSimilar(responses, e.unanimousThreshold) {
		best := 0
		for i := 1; i < len(responses); i++ {
			if responses[i].Confidence > responses[best].Confidence {
				best = i
			}
		}
		chosen := responses[best]
		return &schema.ConsensusResult{
			FinalText:      chosen.Text,
			Confidence:     chosen.Confidence,
			AgreementRatio: 1.0,
			StrategyUsed:   schema.StrategyUnanimous,
			Metadata:       map[string]any{"unanimous": true},
		}
	}

	fallback := e.majority(responses)
	fallback.StrategyUsed = schema.StrategyUnanimous
	fallback.Metadata["unanimous"] = false
	fallback.Metadata["majority_agreement"] = fallback.AgreementRatio
	fallback.AgreementRatio = 0.0
	return fallback
}
