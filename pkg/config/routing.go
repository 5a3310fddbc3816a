package config

// RoutingConfig holds the request defaults applied by the router.
type RoutingConfig struct {
	Strategy     string `yaml:"strategy,omitempty"`
	MinResponses int    `yaml:"min_responses,omitempty"`
	MaxResponses int    `yaml:"max_responses,omitempty"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
}

// ConsensusConfig holds the similarity thresholds of the consensus
// engine.
type ConsensusConfig struct {
	MajorityThreshold  float64 `yaml:"majority_threshold,omitempty"`
	UnanimousThreshold float64 `yaml:"unanimous_threshold,omitempty"`
	HybridCutoff       float64 `yaml:"hybrid_cutoff,omitempty"`
}

// BreakerConfig controls the registry's availability breaker. Disabled
// by default: routing statistics already bias selection away from
// failing candidates.
type BreakerConfig struct {
	Enabled       bool `yaml:"enabled,omitempty"`
	DisableAfter  int  `yaml:"disable_after,omitempty"`
	ReviveAfterMs int  `yaml:"revive_after_ms,omitempty"`
}

// RetryConfig defines the caller-side retry and backoff behavior. The
// router itself never retries.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// DefaultConfig returns the stock configuration: every known provider's
// flagship models with neutral tuning.
func DefaultConfig() *Config {
	cfg := &Config{
		Candidates: []CandidateConfig{
			{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Weight: 1.2},
			{Provider: "anthropic", Model: "claude-opus-4-20250514", Weight: 1.5},
			{Provider: "openai", Model: "gpt-5.2-instant", Weight: 1.0},
			{Provider: "openai", Model: "gpt-5.2-thinking", Weight: 1.1},
			{Provider: "google", Model: "gemini-2.0-flash", Weight: 0.9},
			{Provider: "google", Model: "gemini-2.0-pro", Weight: 1.1},
			{Provider: "deepseek", Model: "deepseek-chat", Weight: 0.8},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Routing.Strategy == "" {
		cfg.Routing.Strategy = "majority"
	}
	if cfg.Routing.MinResponses == 0 {
		cfg.Routing.MinResponses = 1
	}
	if cfg.Routing.MaxResponses == 0 {
		cfg.Routing.MaxResponses = 3
	}
	if cfg.Routing.MaxResponses < cfg.Routing.MinResponses {
		cfg.Routing.MaxResponses = cfg.Routing.MinResponses
	}
	if cfg.Routing.TimeoutMs == 0 {
		cfg.Routing.TimeoutMs = 30000
	}

	if cfg.Consensus.MajorityThreshold == 0 {
		cfg.Consensus.MajorityThreshold = 0.7
	}
	if cfg.Consensus.UnanimousThreshold == 0 {
		cfg.Consensus.UnanimousThreshold = 0.8
	}
	if cfg.Consensus.HybridCutoff == 0 {
		cfg.Consensus.HybridCutoff = 0.7
	}

	if cfg.Breaker.Enabled {
		if cfg.Breaker.DisableAfter == 0 {
			cfg.Breaker.DisableAfter = 5
		}
		if cfg.Breaker.ReviveAfterMs == 0 {
			cfg.Breaker.ReviveAfterMs = 30000
		}
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}

	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultConfig().Candidates
	}
	for i := range cfg.Candidates {
		if cfg.Candidates[i].Weight == 0 {
			cfg.Candidates[i].Weight = 1.0
		}
		if cfg.Candidates[i].MaxTokens == 0 {
			cfg.Candidates[i].MaxTokens = 1024
		}
		if cfg.Candidates[i].Temperature == 0 {
			cfg.Candidates[i].Temperature = 0.7
		}
	}

	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases()
	}
}
