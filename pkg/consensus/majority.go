package consensus

import "github.com/zen-systems/quorum/pkg/schema"

// majority groups similar responses and answers with the best response
// from the largest group. Group ties keep the group whose representative
// came first; confidence ties within the group keep the earlier response.
func (e *Engine) majority(responses []schema.AIResponse) *schema.ConsensusResult {
	groups := groupBySimilarity(responses, e.majorityThreshold)

	best := 0
	for g := 1; g < len(groups); g++ {
		if len(groups[g]) > len(groups[best]) {
			best = g
		}
	}

	winner := groups[best][0]
	for _, idx := range groups[best][1:] {
		if responses[idx].Confidence > responses[winner].Confidence {
			winner = idx
		}
	}

	sizes := make([]int, len(groups))
	for g := range groups {
		sizes[g] = len(groups[g])
	}

	chosen := responses[winner]
	return &schema.ConsensusResult{
		FinalText:      chosen.Text,
		Confidence:     chosen.Confidence,
		AgreementRatio: float64(len(groups[best])) / float64(len(responses)),
		StrategyUsed:   schema.StrategyMajority,
		Metadata: map[string]any{
			"group_count":        len(groups),
			"group_sizes":        sizes,
			"winning_group_size": len(groups[best]),
		},
	}
}
