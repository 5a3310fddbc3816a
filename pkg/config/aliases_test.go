package config

import (
	"sort"
	"testing"
)

func TestResolveModel(t *testing.T) {
	cfg := &Config{
		Aliases: map[string]string{
			"fast":    "openai/gpt-5.2-instant",
			"quality": "anthropic/claude-sonnet-4-20250514",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "resolve known alias",
			input:    "fast",
			expected: "openai/gpt-5.2-instant",
		},
		{
			name:     "resolve another alias",
			input:    "quality",
			expected: "anthropic/claude-sonnet-4-20250514",
		},
		{
			name:     "unknown alias returns input unchanged",
			input:    "unknown-model",
			expected: "unknown-model",
		},
		{
			name:     "canonical key returns unchanged",
			input:    "openai/gpt-5.2-instant",
			expected: "openai/gpt-5.2-instant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cfg.ResolveModel(tt.input)
			if result != tt.expected {
				t.Errorf("ResolveModel(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestResolveModel_NilConfig(t *testing.T) {
	var cfg *Config
	result := cfg.ResolveModel("fast")
	if result != "fast" {
		t.Errorf("ResolveModel on nil should return input, got %q", result)
	}
}

func TestIsAlias(t *testing.T) {
	cfg := &Config{
		Aliases: map[string]string{
			"fast": "openai/gpt-5.2-instant",
		},
	}

	if !cfg.IsAlias("fast") {
		t.Error("IsAlias should return true for known alias")
	}

	if cfg.IsAlias("unknown") {
		t.Error("IsAlias should return false for unknown alias")
	}

	if cfg.IsAlias("openai/gpt-5.2-instant") {
		t.Error("IsAlias should return false for canonical key")
	}
}

func TestListAliases(t *testing.T) {
	cfg := &Config{
		Aliases: map[string]string{
			"quality": "anthropic/claude-sonnet-4-20250514",
			"fast":    "openai/gpt-5.2-instant",
		},
	}

	list := cfg.ListAliases()

	if len(list) != 2 {
		t.Fatalf("expected 2 aliases, got %d", len(list))
	}
	if !sort.StringsAreSorted(list) {
		t.Errorf("ListAliases should be sorted, got %v", list)
	}
	if list[0] != "fast" {
		t.Errorf("first alias = %q, want fast", list[0])
	}
}

func TestDefaultAliases(t *testing.T) {
	aliases := DefaultAliases()

	if len(aliases) == 0 {
		t.Fatal("DefaultAliases should not be empty")
	}

	if aliases["fast"] != "openai/gpt-5.2-instant" {
		t.Error("'fast' alias should resolve to 'openai/gpt-5.2-instant'")
	}

	cfg := DefaultConfig()
	for alias, canonical := range aliases {
		if got := cfg.ResolveModel(alias); got != canonical {
			t.Errorf("default config ResolveModel(%q) = %q, want %q", alias, got, canonical)
		}
	}
}
