// Package diagnosis defines the result of the staged similarity search.
//
// A Result is exactly one of IssueMatches (Stage A), ProblemMatches (Stage B)
// or AIDiagnosis (Stage C). The interface is sealed; on the wire each variant
// is an object with a "type" discriminator.
package diagnosis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// Kind is the wire discriminator.
type Kind string

const (
	KindIssueMatches   Kind = "issue_matches"
	KindProblemMatches Kind = "problem_matches"
	KindAIDiagnosis    Kind = "ai_diagnosis"
)

// Source says where the matches came from.
type Source string

const (
	SourceCurrentBusiness Source = "current_business"
	SourceOtherBusiness   Source = "other_business"
	SourceAIGenerated     Source = "ai_generated"
)

// ErrUnknownKind is returned when decoding an unrecognized discriminator.
var ErrUnknownKind = errors.New("unknown diagnosis result type")

// Result is the sealed union of the three stage outcomes.
type Result interface {
	Kind() Kind
	Source() Source
	// Candidates flattens the result into solutions the user can try, in order.
	Candidates() []Candidate
	// Empty reports whether there is nothing to present.
	Empty() bool

	sealed()
}

// Origin records which path produced a candidate. It decides what the
// feedback loop writes on success.
type Origin string

const (
	OriginIssue     Origin = "issue"      // Stage A, tenant's own closed issue
	OriginOpenIssue Origin = "open_issue" // unresolved issue picked by the user
	OriginProblem   Origin = "problem"    // Stage B, another tenant's solution
	OriginAI        Origin = "ai"         // Stage C, not persisted yet
)

// Persisted reports whether the candidate's solution already exists in the store.
func (o Origin) Persisted() bool {
	return o != OriginAI
}

// Candidate is one solution the user can test.
type Candidate struct {
	Origin        Origin `json:"origin"`
	Treatment     string `json:"treatment"`
	Cause         string `json:"cause,omitempty"`
	IssueID       string `json:"issue_id,omitempty"`
	ProblemID     string `json:"problem_id,omitempty"`
	SolutionID    string `json:"solution_id,omitempty"`
	Effectiveness int    `json:"effectiveness"`
	Badge         string `json:"badge,omitempty"`
}

// Key identifies a candidate for tried-list bookkeeping.
func (c Candidate) Key() string {
	if c.SolutionID != "" {
		return "solution:" + c.SolutionID
	}
	return "text:" + c.Treatment
}

// IssueMatch is a Stage A hit: one of the tenant's own issues with a solution.
type IssueMatch struct {
	IssueID       string `json:"issue_id"`
	ProblemID     string `json:"problem_id"`
	SolutionID    string `json:"solution_id"`
	Description   string `json:"description"`
	Treatment     string `json:"treatment"`
	Effectiveness int    `json:"effectiveness"`
	Status        string `json:"status"`
}

// IssueMatches is the Stage A variant.
type IssueMatches struct {
	Matches []IssueMatch `json:"matches"`
}

func (IssueMatches) Kind() Kind     { return KindIssueMatches }
func (IssueMatches) Source() Source { return SourceCurrentBusiness }
func (r IssueMatches) Empty() bool  { return len(r.Matches) == 0 }
func (IssueMatches) sealed()        {}

func (r IssueMatches) Candidates() []Candidate {
	out := make([]Candidate, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, Candidate{
			Origin:        OriginIssue,
			Treatment:     m.Treatment,
			IssueID:       m.IssueID,
			ProblemID:     m.ProblemID,
			SolutionID:    m.SolutionID,
			Effectiveness: m.Effectiveness,
			Badge:         tenant.BadgeCurrentBusiness,
		})
	}
	return out
}

// ProblemMatch is a Stage B hit. It never names the tenant it came from.
type ProblemMatch struct {
	ProblemID     string `json:"problem_id"`
	SolutionID    string `json:"solution_id"`
	Description   string `json:"description"`
	Treatment     string `json:"treatment"`
	Effectiveness int    `json:"effectiveness"`
	Score         int    `json:"score"`
	Manufacturer  string `json:"manufacturer,omitempty"`
	Model         string `json:"model,omitempty"`
	Badge         string `json:"badge"`
}

// ProblemMatches is the Stage B variant.
type ProblemMatches struct {
	Matches []ProblemMatch `json:"matches"`
}

func (ProblemMatches) Kind() Kind     { return KindProblemMatches }
func (ProblemMatches) Source() Source { return SourceOtherBusiness }
func (r ProblemMatches) Empty() bool  { return len(r.Matches) == 0 }
func (ProblemMatches) sealed()        {}

func (r ProblemMatches) Candidates() []Candidate {
	out := make([]Candidate, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, Candidate{
			Origin:        OriginProblem,
			Treatment:     m.Treatment,
			ProblemID:     m.ProblemID,
			SolutionID:    m.SolutionID,
			Effectiveness: m.Effectiveness,
			Badge:         m.Badge,
		})
	}
	return out
}

// AIDiagnosis is the Stage C variant.
type AIDiagnosis struct {
	PossibleCauses      []string `json:"possible_causes"`
	SuggestedSolutions  []string `json:"suggested_solutions"`
	EstimatedCost       string   `json:"estimated_cost"`
	PartsNeeded         []string `json:"parts_needed"`
	DiagnosisConfidence int      `json:"diagnosis_confidence"`
	// Degraded is set when the AI backend failed and a generic answer was substituted.
	Degraded bool `json:"degraded,omitempty"`
}

func (AIDiagnosis) Kind() Kind     { return KindAIDiagnosis }
func (AIDiagnosis) Source() Source { return SourceAIGenerated }
func (r AIDiagnosis) Empty() bool  { return len(r.SuggestedSolutions) == 0 }
func (AIDiagnosis) sealed()        {}

// Candidates pairs each suggested solution with the cause at the same index.
func (r AIDiagnosis) Candidates() []Candidate {
	out := make([]Candidate, 0, len(r.SuggestedSolutions))
	for i, s := range r.SuggestedSolutions {
		c := Candidate{
			Origin:        OriginAI,
			Treatment:     s,
			Effectiveness: r.DiagnosisConfidence,
			Badge:         tenant.BadgeAI,
		}
		if i < len(r.PossibleCauses) {
			c.Cause = r.PossibleCauses[i]
		}
		out = append(out, c)
	}
	return out
}

// ClampConfidence bounds a confidence value to [0,100].
func ClampConfidence(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Marshal encodes r with its "type" and "source" fields.
func Marshal(r Result) ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(r.Kind())
	fields["source"], _ = json.Marshal(r.Source())
	return json.Marshal(fields)
}

// Unmarshal decodes a value written by Marshal. "null" decodes to a nil Result.
func Unmarshal(data []byte) (Result, error) {
	if string(data) == "null" {
		return nil, nil
	}
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode diagnosis type: %w", err)
	}

	switch head.Type {
	case KindIssueMatches:
		var r IssueMatches
		err := json.Unmarshal(data, &r)
		return r, err
	case KindProblemMatches:
		var r ProblemMatches
		err := json.Unmarshal(data, &r)
		return r, err
	case KindAIDiagnosis:
		var r AIDiagnosis
		err := json.Unmarshal(data, &r)
		return r, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
}

// Holder embeds a Result inside a larger JSON document.
type Holder struct {
	Result Result
}

// MarshalJSON implements json.Marshaler.
func (h Holder) MarshalJSON() ([]byte, error) {
	return Marshal(h.Result)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Holder) UnmarshalJSON(data []byte) error {
	r, err := Unmarshal(data)
	if err != nil {
		return err
	}
	h.Result = r
	return nil
}
