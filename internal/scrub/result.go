package scrub

// Result is the outcome of scrubbing one text.
type Result struct {
	Scrubbed string `json:"scrubbed"`

	// Findings never carry the matched value.
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Finding locates one redacted match in the original text.
type Finding struct {
	RuleID     string `json:"rule_id"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}
