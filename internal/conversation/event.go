package conversation

import (
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

// Event is an input to the machine: a user action or the result of an
// instruction.
type Event interface {
	event()
}

// UserMessage is free text typed by the user.
type UserMessage struct {
	Text string
}

// EquipmentResolved answers ResolveEquipment.
type EquipmentResolved struct {
	Candidates          []store.Equipment
	ManualEntryRequired bool
}

// EquipmentBound answers BindEquipment and CreateEquipment.
type EquipmentBound struct {
	Equipment         store.Equipment
	FollowUpQuestions []string
}

// OpenIssuesFound answers FindOpenIssues.
type OpenIssuesFound struct {
	Issues []OpenIssue
}

// IssueSolutionLoaded answers LoadIssueSolution. Candidate is nil when the
// issue has no usable solution.
type IssueSolutionLoaded struct {
	Candidate *diagnosis.Candidate
}

// DescriptionEnhanced answers EnhanceDescription.
type DescriptionEnhanced struct {
	Text string
	OK   bool
}

// MatchesFound answers RunStage.
type MatchesFound struct {
	Stage  diagnosis.Stage
	Result diagnosis.Result
}

// SolutionFeedback reports whether a presented solution worked. An empty
// SolutionText means the solution currently being tested.
type SolutionFeedback struct {
	SolutionText string
	Worked       bool
}

// ResolutionRecorded answers RecordSuccess.
type ResolutionRecorded struct {
	IssueID string
}

// Escalated answers Escalate on success.
type Escalated struct {
	IssueID      string
	AssignmentID string
}

// EscalationFailed answers Escalate when the hand-off did not happen.
// IssueID is set when the issue was already written.
type EscalationFailed struct {
	IssueID string
	Reason  string
}

func (UserMessage) event()         {}
func (EquipmentResolved) event()   {}
func (EquipmentBound) event()      {}
func (OpenIssuesFound) event()     {}
func (IssueSolutionLoaded) event() {}
func (DescriptionEnhanced) event() {}
func (MatchesFound) event()        {}
func (SolutionFeedback) event()    {}
func (ResolutionRecorded) event()  {}
func (Escalated) event()           {}
func (EscalationFailed) event()    {}
