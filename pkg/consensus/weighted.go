package consensus

import "github.com/zen-systems/quorum/pkg/schema"

// responseWeight favors confident, fast, cheap responses. Latency enters
// in seconds so the factors stay on comparable scales; an unknown cost
// contributes a factor of one rather than a penalty.
func responseWeight(resp schema.AIResponse) float64 {
	w := resp.Confidence
	w *= 1 / (1 + resp.Latency.Seconds())
	if resp.Cost > 0 {
		w *= 1 / (1 + resp.Cost)
	}
	return w
}

// weighted answers with the heaviest response. The agreement ratio is
// that response's share of the total weight.
func (e *Engine) weighted(responses []schema.AIResponse) *schema.ConsensusResult {
	weights := make([]float64, len(responses))
	total := 0.0
	best := 0
	for i := range responses {
		weights[i] = responseWeight(responses[i])
		total += weights[i]
		if weights[i] > weights[best] {
			best = i
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = weights[best] / total
	}

	byKey := make(map[string]float64, len(responses))
	for i := range responses {
		byKey[string(responses[i].Key())] = weights[i]
	}

	chosen := responses[best]
	return &schema.ConsensusResult{
		FinalText:      chosen.Text,
		Confidence:     chosen.Confidence,
		AgreementRatio: ratio,
		StrategyUsed:   schema.StrategyWeighted,
		Metadata:       map[string]any{"weights": byKey},
	}
}
