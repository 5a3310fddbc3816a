package consensus

import "github.com/zen-systems/quorum/pkg/schema"

// Responses between these lengths score at full value; anything shorter
// or longer is discounted as likely too thin or too rambling.
const (
	idealLengthMin = 100
	idealLengthMax = 1000
	lengthPenalty  = 0.8
)

func lengthFactor(text string) float64 {
	if n := len(text); n >= idealLengthMin && n <= idealLengthMax {
		return 1.0
	}
	return lengthPenalty
}

// bestOfN answers with the highest-scoring response, where the score is
// the weighted formula discounted by the length factor. The agreement
// ratio is the winner's share of the total score.
func (e *Engine) bestOfN(responses []schema.AIResponse) *schema.ConsensusResult {
	scores := make([]float64, len(responses))
	total := 0.0
	best := 0
	for i := range responses {
		scores[i] = responseWeight(responses[i]) * lengthFactor(responses[i].Text)
		total += scores[i]
		if scores[i] > scores[best] {
			best = i
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = scores[best] / total
	}

	byKey := make(map[string]float64, len(responses))
	for i := range responses {
		byKey[string(responses[i].Key())] = scores[i]
	}

	chosen := responses[best]
	return &schema.ConsensusResult{
		FinalText:      chosen.Text,
		Confidence:     chosen.Confidence,
		AgreementRatio: ratio,
		StrategyUsed:   schema.StrategyBestOfN,
		Metadata:       map[string]any{"scores": byKey},
	}
}
