package conversation

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
)

// Session is one conversation. It is only changed by applying an Outcome.
type Session struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	EquipmentID  string    `json:"equipment_id,omitempty"`
	Step         Step      `json:"step"`
	History      []Step    `json:"history"`
	Context      Context   `json:"context"`
	Language     string    `json:"language"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSession returns a session at the initial step.
func NewSession(id, tenantID, userID, equipmentID, language string, now time.Time) Session {
	return Session{
		ID:          id,
		TenantID:    tenantID,
		UserID:      userID,
		EquipmentID: equipmentID,
		Step:        StepInitial,
		History:     []Step{StepInitial},
		Language:    language,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Completed reports whether the session reached the terminal step.
func (s Session) Completed() bool {
	return s.Step.Terminal()
}

// FollowUp is a catalog question and the user's answer.
type FollowUp struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EquipmentOption is one entry of the equipment choice list.
type EquipmentOption struct {
	Number int    `json:"number"`
	ID     string `json:"id"`
	Label  string `json:"label"`
}

// OpenIssue is an unresolved issue offered to the user.
type OpenIssue struct {
	Number      int    `json:"number"`
	IssueID     string `json:"issue_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	HasSolution bool   `json:"has_solution"`
}

// EscalationState tracks the technician hand-off.
type EscalationState struct {
	Requested    bool   `json:"requested"`
	Attempts     int    `json:"attempts"`
	IssueID      string `json:"issue_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Context is the working memory of a session.
type Context struct {
	InitialDescription  string `json:"initial_description,omitempty"`
	EnhancedDescription string `json:"enhanced_description,omitempty"`
	EnhancementApproved bool   `json:"enhancement_approved,omitempty"`
	// AwaitingApproval is set while the enhanced description is shown for confirmation.
	AwaitingApproval bool `json:"awaiting_approval,omitempty"`

	EquipmentType    string            `json:"equipment_type,omitempty"`
	EquipmentLabel   string            `json:"equipment_label,omitempty"`
	EquipmentChoices []EquipmentOption `json:"equipment_choices,omitempty"`
	ManualEntry      bool              `json:"manual_entry,omitempty"`
	OpenIssues       []OpenIssue       `json:"open_issues,omitempty"`
	Questions        []string          `json:"questions,omitempty"`
	FollowUps        []FollowUp        `json:"follow_ups,omitempty"`

	// Stage is the stage the current candidates came from; empty for an open issue.
	Stage      diagnosis.Stage       `json:"stage,omitempty"`
	Candidates []diagnosis.Candidate `json:"candidates,omitempty"`
	Cursor     int                   `json:"cursor"`
	// Tried holds candidate keys; TriedTreatments the matching texts in order.
	Tried           []string `json:"tried,omitempty"`
	TriedTreatments []string `json:"tried_treatments,omitempty"`
	AILoading       bool     `json:"ai_loading,omitempty"`
	AITried         bool     `json:"ai_tried,omitempty"`

	Escalation EscalationState `json:"escalation"`
	// ResolvedIssueID is the issue closed by a confirmed fix.
	ResolvedIssueID string           `json:"resolved_issue_id,omitempty"`
	LastResult      diagnosis.Holder `json:"last_result"`
}

func (c Context) clone() Context {
	out := c
	out.EquipmentChoices = append([]EquipmentOption(nil), c.EquipmentChoices...)
	out.OpenIssues = append([]OpenIssue(nil), c.OpenIssues...)
	out.Questions = append([]string(nil), c.Questions...)
	out.FollowUps = append([]FollowUp(nil), c.FollowUps...)
	out.Candidates = append([]diagnosis.Candidate(nil), c.Candidates...)
	out.Tried = append([]string(nil), c.Tried...)
	out.TriedTreatments = append([]string(nil), c.TriedTreatments...)
	return out
}

// ProblemText is the description the matcher and the feedback loop use: the
// approved enhanced description, else the original text with the answers.
func (c Context) ProblemText() string {
	if c.EnhancementApproved && c.EnhancedDescription != "" {
		return c.EnhancedDescription
	}
	return c.rawDescription()
}

func (c Context) rawDescription() string {
	parts := []string{strings.TrimSpace(c.InitialDescription)}
	for _, f := range c.FollowUps {
		if a := strings.TrimSpace(f.Answer); a != "" {
			parts = append(parts, f.Question+" "+a)
		}
	}
	return strings.Join(parts, "\n")
}

// Current returns the candidate being tested.
func (c Context) Current() (diagnosis.Candidate, bool) {
	if c.Cursor < 0 || c.Cursor >= len(c.Candidates) {
		return diagnosis.Candidate{}, false
	}
	return c.Candidates[c.Cursor], true
}

// HasTried reports whether the candidate was already rejected.
func (c Context) HasTried(cand diagnosis.Candidate) bool {
	key := cand.Key()
	for _, k := range c.Tried {
		if k == key {
			return true
		}
	}
	return false
}

func (c Context) untried(cands []diagnosis.Candidate) []diagnosis.Candidate {
	out := make([]diagnosis.Candidate, 0, len(cands))
	for _, cand := range cands {
		if !c.HasTried(cand) {
			out = append(out, cand)
		}
	}
	return out
}
