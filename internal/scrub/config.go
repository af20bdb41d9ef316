package scrub

import (
	"fmt"
	"regexp"
)

// Config configures the scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	Rules []Rule `koanf:"rules"`

	// Placeholder replaces matches of rules without their own Label.
	Placeholder string `koanf:"placeholder"`

	// AllowList patterns are never redacted, e.g. a support hotline.
	AllowList []string `koanf:"allow_list"`

	compiledRules     []*compiledRule
	compiledAllowList []*regexp.Regexp
}

// Rule detects one kind of sensitive value.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Keywords gate the rule: at least one must appear in the text.
	Keywords []string `koanf:"keywords"`
	// Label is the placeholder written in place of a match.
	Label string `koanf:"label"`
	// Check is an optional post-match filter (e.g. a Luhn check).
	Check func(match string) bool `koanf:"-"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns the standard personal-data rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Placeholder: "[REDACTED]",
		Rules:       DefaultRules(),
	}
}

// Validate compiles rules and the allow list.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Placeholder == "" {
		c.Placeholder = "[REDACTED]"
	}

	c.compiledRules = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		compiled := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			compiled.keywords = append(compiled.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiledRules = append(c.compiledRules, compiled)
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}
	return nil
}
