package scrub

import (
	"sort"
	"strings"
)

// Scrubber redacts sensitive values from text.
type Scrubber interface {
	Scrub(content string) *Result
	IsEnabled() bool
}

type scrubber struct {
	config *Config
}

type redaction struct {
	start, end int
	label      string
}

// New creates a Scrubber. A nil config means DefaultConfig().
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &scrubber{config: cfg}, nil
}

// MustNew is New that panics on an invalid config.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Scrub replaces every match with its rule's label.
func (s *scrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content, ByRule: make(map[string]int)}
	if !s.config.Enabled || content == "" {
		return result
	}

	var redactions []redaction
	for _, rule := range s.config.compiledRules {
		if !rule.gated(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			match := content[m[0]:m[1]]
			if s.isAllowed(match) || (rule.Check != nil && !rule.Check(match)) {
				continue
			}
			label := rule.Label
			if label == "" {
				label = s.config.Placeholder
			}
			result.Findings = append(result.Findings, Finding{RuleID: rule.ID, StartIndex: m[0], EndIndex: m[1]})
			result.ByRule[rule.ID]++
			redactions = append(redactions, redaction{start: m[0], end: m[1], label: label})
		}
	}
	if len(redactions) == 0 {
		return result
	}

	var b strings.Builder
	pos := 0
	for _, r := range mergeRedactions(redactions) {
		b.WriteString(content[pos:r.start])
		b.WriteString(r.label)
		pos = r.end
	}
	b.WriteString(content[pos:])
	result.Scrubbed = b.String()
	return result
}

func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *compiledRule) gated(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// mergeRedactions sorts by start and folds overlapping spans into the
// earliest one, keeping the earliest label.
func mergeRedactions(rs []redaction) []redaction {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].start != rs[j].start {
			return rs[i].start < rs[j].start
		}
		return rs[i].end > rs[j].end
	})
	merged := []redaction{rs[0]}
	for _, cur := range rs[1:] {
		last := &merged[len(merged)-1]
		if cur.start < last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Noop returns text unchanged.
type Noop struct{}

func (Noop) Scrub(content string) *Result {
	return &Result{Scrubbed: content, ByRule: map[string]int{}}
}

func (Noop) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = Noop{}
)
