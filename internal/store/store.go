// Package store provides persistence for equipment, cases and sessions.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent writer changed the row first.
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid record")
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	IssueOpen              IssueStatus = "open"
	IssuePendingTechnician IssueStatus = "pending_technician"
	IssueClosed            IssueStatus = "closed"
)

// Unresolved reports whether the issue still needs attention.
func (s IssueStatus) Unresolved() bool {
	return s == IssueOpen || s == IssuePendingTechnician
}

// Equipment is a tenant's piece of equipment.
type Equipment struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Type         string    `json:"type"`
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	Category     string    `json:"category,omitempty"`
	SearchKey    string    `json:"search_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Label is a short human-readable name, e.g. "Rational iCombi Pro (oven)".
func (e Equipment) Label() string {
	name := strings.TrimSpace(e.Manufacturer + " " + e.Model)
	if name == "" {
		return e.Type
	}
	return name + " (" + e.Type + ")"
}

// EquipmentFields are the user-supplied attributes for manual entry.
type EquipmentFields struct {
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Category     string `json:"category,omitempty"`
}

// Problem is a reported malfunction.
type Problem struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	EquipmentID string    `json:"equipment_id"`
	Description string    `json:"description"`
	Categories  []string  `json:"categories,omitempty"`
	ReportedBy  string    `json:"reported_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Solution is a treatment for a problem. Effectiveness is always in [0,100].
type Solution struct {
	ID            string    `json:"id"`
	ProblemID     string    `json:"problem_id"`
	Treatment     string    `json:"treatment"`
	Effectiveness int       `json:"effectiveness"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// Issue links a tenant's problem to an optional solution.
type Issue struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	ProblemID    string      `json:"problem_id"`
	SolutionID   string      `json:"solution_id,omitempty"`
	OpenedBy     string      `json:"opened_by"`
	ClosedBy     string      `json:"closed_by,omitempty"`
	Status       IssueStatus `json:"status"`
	AssignmentID string      `json:"assignment_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IssueDetail is an issue joined with its problem and best-known solution.
// Solution is the issue's own solution, else the problem's most effective one.
type IssueDetail struct {
	Issue    Issue
	Problem  Problem
	Solution *Solution
}

// ProblemCandidate is a problem joined with its equipment and solutions
// (most effective first). Used for cross-tenant matching.
type ProblemCandidate struct {
	Problem   Problem
	Equipment Equipment
	Solutions []Solution
}

// NewProblem describes a problem row to create inside a transaction.
type NewProblem struct {
	Description string
	Categories  []string
}

// NewSolution describes a solution row to create inside a transaction.
type NewSolution struct {
	Treatment     string
	Effectiveness int
	Source        string
}

// Resolution is everything written when a user confirms a solution worked.
//
// Exactly one of the following shapes is accepted:
//   - IssueID + SolutionID: close an existing issue and adjust the solution.
//   - NewProblem + SolutionID: record the tenant's problem as solved by an
//     existing (borrowed) solution.
//   - NewProblem + NewSolution: persist an AI-generated fix.
type Resolution struct {
	TenantID    string
	EquipmentID string
	UserID      string
	// SessionID, when set, makes the write happen at most once per session.
	SessionID string

	IssueID            string
	SolutionID         string
	EffectivenessDelta int

	NewProblem  *NewProblem
	NewSolution *NewSolution
}

func (r Resolution) validate() error {
	switch {
	case r.TenantID == "" || r.UserID == "":
		return errors.New("tenant and user are required")
	case r.IssueID != "" && r.SolutionID != "" && r.NewProblem == nil && r.NewSolution == nil:
		return nil
	case r.IssueID == "" && r.NewProblem != nil && (r.SolutionID != "") != (r.NewSolution != nil):
		if r.EquipmentID == "" {
			return errors.New("equipment is required for a new problem")
		}
		return nil
	default:
		return errors.New("unsupported resolution shape")
	}
}

// ResolutionResult names the rows a resolution touched or created.
type ResolutionResult struct {
	ProblemID  string
	SolutionID string
	IssueID    string
	// Effectiveness is the solution's score after the write.
	Effectiveness int
}

// Escalation is the record of a case handed to a technician.
type Escalation struct {
	TenantID    string
	EquipmentID string
	OpenedBy    string
	Description string
	Categories  []string
	// IssueID reuses an escalation issue created by an earlier attempt.
	IssueID string
	// SessionID, when set, returns the issue an earlier call for the same
	// session created instead of writing a new one.
	SessionID string
}

// SessionRecord is the persisted form of a conversation session.
type SessionRecord struct {
	ID           string
	TenantID     string
	UserID       string
	EquipmentID  string
	Step         string
	History      []string
	Context      []byte
	Language     string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageRecord is a persisted message.
type MessageRecord struct {
	ID        string
	SessionID string
	Seq       int
	Sender    string
	Text      string
	Payload   []byte
	CreatedAt time.Time
}

// EquipmentStore reads and creates equipment records.
type EquipmentStore interface {
	// FindEquipmentByAttributes returns the tenant's equipment whose type,
	// manufacturer, model, category or search key contains any of terms,
	// most recently updated first.
	FindEquipmentByAttributes(ctx context.Context, tenantID string, terms []string) ([]Equipment, error)
	GetEquipment(ctx context.Context, tenantID, id string) (*Equipment, error)
	CreateEquipment(ctx context.Context, tenantID string, fields EquipmentFields) (*Equipment, error)
}

// CaseStore reads and writes problems, solutions and issues.
type CaseStore interface {
	// FindIssues returns all of the tenant's issues for the equipment, newest first.
	FindIssues(ctx context.Context, tenantID, equipmentID string) ([]IssueDetail, error)
	// FindOpenIssues is FindIssues restricted to unresolved statuses.
	FindOpenIssues(ctx context.Context, tenantID, equipmentID string) ([]IssueDetail, error)
	// FindProblemsByEquipmentType returns problems with at least one solution on
	// equipment of the given type, excluding excludeTenantID, newest first.
	FindProblemsByEquipmentType(ctx context.Context, equipmentType, excludeTenantID string) ([]ProblemCandidate, error)
	GetIssue(ctx context.Context, tenantID, issueID string) (*IssueDetail, error)
	GetSolution(ctx context.Context, solutionID string) (*Solution, error)

	CreateProblem(ctx context.Context, p *Problem) error
	CreateSolution(ctx context.Context, s *Solution) error
	CreateIssue(ctx context.Context, i *Issue) error

	// AdjustEffectiveness adds delta to a solution's score, clamped to [0,100].
	AdjustEffectiveness(ctx context.Context, solutionID string, delta int) (int, error)
	// RecordResolution writes a confirmed fix atomically.
	RecordResolution(ctx context.Context, r Resolution) (*ResolutionResult, error)
	// RecordEscalation creates (or reuses) a problem and a pending_technician issue atomically.
	RecordEscalation(ctx context.Context, e Escalation) (*Issue, error)
	SetAssignment(ctx context.Context, tenantID, issueID, assignmentID string) error
}

// SessionStore persists conversation sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// SaveTurn updates the session row and appends msgs in one transaction.
	// It fails with ErrConflict if another turn was saved in between.
	SaveTurn(ctx context.Context, rec *SessionRecord, msgs []MessageRecord) error
	ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error)
}

// Store is the full persistence surface.
type Store interface {
	EquipmentStore
	CaseStore
	SessionStore

	Ping(ctx context.Context) error
	Close() error
}

// ClampEffectiveness bounds a score to [0,100].
func ClampEffectiveness(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
