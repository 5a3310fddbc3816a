package config

import "sort"

// DefaultAliases maps the short model names accepted on the command
// line to canonical candidate keys.
func DefaultAliases() map[string]string {
	return map[string]string{
		"claude":   "anthropic/claude-sonnet-4-20250514",
		"gpt":      "openai/gpt-5.2-instant",
		"gemini":   "google/gemini-2.0-flash",
		"deepseek": "deepseek/deepseek-chat",
		"fast":     "openai/gpt-5.2-instant",
		"thinking": "openai/gpt-5.2-thinking",
		"quality":  "anthropic/claude-sonnet-4-20250514",
		"deep":     "anthropic/claude-opus-4-20250514",
		"research": "google/gemini-2.0-pro",
		"flash":    "google/gemini-2.0-flash",
		"cheap":    "deepseek/deepseek-chat",
	}
}

// ResolveModel returns the canonical candidate key for an alias. If the
// input is not an alias, it returns the input unchanged.
func (c *Config) ResolveModel(nameOrAlias string) string {
	if c == nil || c.Aliases == nil {
		return nameOrAlias
	}
	if canonical, ok := c.Aliases[nameOrAlias]; ok {
		return canonical
	}
	return nameOrAlias
}

// IsAlias reports whether the given string is a known alias.
func (c *Config) IsAlias(name string) bool {
	if c == nil || c.Aliases == nil {
		return false
	}
	_, ok := c.Aliases[name]
	return ok
}

// ListAliases returns the alias names, sorted for stable listings.
func (c *Config) ListAliases() []string {
	if c == nil || c.Aliases == nil {
		return nil
	}
	names := make([]string, 0, len(c.Aliases))
	for name := range c.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
