// Package config loads the quorum configuration from YAML and the
// environment. Environment variables take precedence over file values
// for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Config holds the full application configuration.
type Config struct {
	APIKeys    APIKeysConfig     `yaml:"api_keys"`
	Routing    RoutingConfig     `yaml:"routing"`
	Consensus  ConsensusConfig   `yaml:"consensus"`
	Breaker    BreakerConfig     `yaml:"breaker"`
	Retry      RetryConfig       `yaml:"retry"`
	Pricing    PricingConfig     `yaml:"pricing,omitempty"`
	Candidates []CandidateConfig `yaml:"candidates"`
	Aliases    map[string]string `yaml:"aliases,omitempty"`
	StorePath  string            `yaml:"store_path,omitempty"`

	ConfigDir string `yaml:"-"`
}

// APIKeysConfig holds provider credentials from file. Environment
// variables override every field.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
}

// CandidateConfig declares one entry of the candidate pool.
type CandidateConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Weight      float64 `yaml:"weight,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	Disabled    bool    `yaml:"disabled,omitempty"`
}

// Load reads configuration from ~/.quorum/config.yaml and environment
// variables. A missing file yields the defaults.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		cfg := DefaultConfig()
		cfg.ConfigDir = configDir
		finishLoad(cfg)
		return cfg, nil
	}
	return loadFile(path, configDir)
}

// LoadFrom reads configuration from an explicit path. Unlike Load, a
// missing or malformed file is an error.
func LoadFrom(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return loadFile(path, configDir)
}

func loadFile(path, configDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ConfigDir = configDir
	finishLoad(cfg)
	return cfg, nil
}

// finishLoad applies env overrides, defaults, and derived paths.
func finishLoad(cfg *Config) {
	cfg.APIKeys.Anthropic = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.APIKeys.Anthropic)
	cfg.APIKeys.OpenAI = getEnvOrDefault("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	cfg.APIKeys.Google = getEnvOrDefault("GOOGLE_API_KEY", cfg.APIKeys.Google)
	cfg.APIKeys.DeepSeek = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.APIKeys.DeepSeek)

	applyDefaults(cfg)

	if cfg.StorePath == "" && cfg.ConfigDir != "" {
		cfg.StorePath = filepath.Join(cfg.ConfigDir, "stats.db")
	}
}

// APIKey returns the credential for a provider. The mock provider needs
// none and always resolves to a placeholder.
func (c *Config) APIKey(provider schema.Provider) string {
	switch provider {
	case schema.ProviderAnthropic:
		return c.APIKeys.Anthropic
	case schema.ProviderOpenAI:
		return c.APIKeys.OpenAI
	case schema.ProviderGoogle:
		return c.APIKeys.Google
	case schema.ProviderDeepSeek:
		return c.APIKeys.DeepSeek
	case schema.ProviderMock:
		return "mock"
	default:
		return ""
	}
}

// HasProvider reports whether the provider's credential is configured.
func (c *Config) HasProvider(provider schema.Provider) bool {
	return c.APIKey(provider) != ""
}

// Timeout returns the request-wide routing deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Routing.TimeoutMs) * time.Millisecond
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if _, err := schema.ParseStrategy(c.Routing.Strategy); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if c.Routing.MinResponses < 1 {
		return fmt.Errorf("routing: min_responses must be at least 1, got %d", c.Routing.MinResponses)
	}
	if c.Routing.MaxResponses < c.Routing.MinResponses {
		return fmt.Errorf("routing: max_responses %d below min_responses %d", c.Routing.MaxResponses, c.Routing.MinResponses)
	}
	if c.Routing.TimeoutMs <= 0 {
		return fmt.Errorf("routing: timeout_ms must be positive, got %d", c.Routing.TimeoutMs)
	}

	for name, threshold := range map[string]float64{
		"majority_threshold":  c.Consensus.MajorityThreshold,
		"unanimous_threshold": c.Consensus.UnanimousThreshold,
		"hybrid_cutoff":       c.Consensus.HybridCutoff,
	} {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("consensus: %s %v outside (0,1]", name, threshold)
		}
	}

	if c.Breaker.Enabled {
		if c.Breaker.DisableAfter < 1 {
			return fmt.Errorf("breaker: disable_after must be at least 1, got %d", c.Breaker.DisableAfter)
		}
		if c.Breaker.ReviveAfterMs <= 0 {
			return fmt.Errorf("breaker: revive_after_ms must be positive, got %d", c.Breaker.ReviveAfterMs)
		}
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry: max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseBackoffMs <= 0 || c.Retry.MaxBackoffMs < c.Retry.BaseBackoffMs {
		return fmt.Errorf("retry: backoff window %d..%d ms invalid", c.Retry.BaseBackoffMs, c.Retry.MaxBackoffMs)
	}

	if len(c.Candidates) == 0 {
		return fmt.Errorf("candidates: at least one candidate required")
	}
	for i, cand := range c.Candidates {
		if _, err := schema.ParseProvider(cand.Provider); err != nil {
			return fmt.Errorf("candidates[%d]: %w", i, err)
		}
		if cand.Model == "" {
			return fmt.Errorf("candidates[%d]: model required", i)
		}
		if cand.Weight < 0 {
			return fmt.Errorf("candidates[%d]: weight must not be negative, got %v", i, cand.Weight)
		}
	}

	return nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".quorum")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
