package config

// PricingConfig maps provider -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// PerToken blends prompt and completion pricing into one per-token rate
// for candidate scoring.
func (p ModelPricing) PerToken() float64 {
	return (p.PromptPer1K + p.CompletionPer1K) / 2 / 1000
}

// CostPerToken resolves the blended per-token rate for a candidate,
// zero when no pricing entry exists. A "default" model entry acts as
// the provider-wide fallback.
func (p PricingConfig) CostPerToken(provider, model string) float64 {
	entry, ok := pricingFor(p, provider, model)
	if !ok {
		return 0
	}
	return entry.PerToken()
}

func pricingFor(pricing PricingConfig, provider, model string) (ModelPricing, bool) {
	if pricing == nil {
		return ModelPricing{}, false
	}
	if providerPricing, ok := pricing[provider]; ok {
		if entry, ok := providerPricing[model]; ok {
			return entry, true
		}
		if entry, ok := providerPricing["default"]; ok {
			return entry, true
		}
	}
	return ModelPricing{}, false
}
