package consensus

import "github.com/zen-systems/quorum/pkg/schema"

// hybrid trusts the majority when agreement is strong enough and falls
// back to the weighted selection otherwise. Metadata records which path
// produced the answer.
func (e *Engine) hybrid(responses []schema.AIResponse) *schema.ConsensusResult {
	result := e.majority(responses)
	if result.AgreementRatio >= e.hybridCutoff {
		result.StrategyUsed = schema.StrategyHybrid
		result.Metadata["method_used"] = string(schema.StrategyMajority)
		return result
	}

	result = e.weighted(responses)
	result.StrategyUsed = schema.StrategyHybrid
	result.Metadata["method_used"] = string(schema.StrategyWeighted)
	return result
}
