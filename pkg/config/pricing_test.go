package config

import (
	"math"
	"testing"
)

func TestCostPerToken(t *testing.T) {
	pricing := PricingConfig{
		"openai": {
			"gpt-5.2-instant": {PromptPer1K: 0.5, CompletionPer1K: 1.5},
			"default":         {PromptPer1K: 1.0, CompletionPer1K: 3.0},
		},
		"anthropic": {
			"default": {PromptPer1K: 3.0, CompletionPer1K: 15.0},
		},
	}

	tests := []struct {
		name     string
		provider string
		model    string
		want     float64
	}{
		{"exact model entry", "openai", "gpt-5.2-instant", 0.001},
		{"provider default fallback", "openai", "gpt-5.2-thinking", 0.002},
		{"default-only provider", "anthropic", "claude-opus-4-20250514", 0.009},
		{"unknown provider", "acme", "any", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pricing.CostPerToken(tt.provider, tt.model)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("CostPerToken(%q, %q) = %g, want %g", tt.provider, tt.model, got, tt.want)
			}
		})
	}
}

func TestCostPerTokenNilPricing(t *testing.T) {
	var pricing PricingConfig
	if got := pricing.CostPerToken("openai", "gpt-5.2-instant"); got != 0 {
		t.Errorf("nil pricing should cost 0, got %g", got)
	}
}
