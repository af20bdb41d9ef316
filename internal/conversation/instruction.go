package conversation

import (
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

// Instruction is a side effect requested by the machine. Each one is
// answered by at most one event.
type Instruction interface {
	instruction()
}

// ResolveEquipment runs the equipment resolver on the user's text.
// Answered by EquipmentResolved.
type ResolveEquipment struct {
	Text string
}

// BindEquipment loads the tenant's equipment by id. Answered by EquipmentBound.
type BindEquipment struct {
	EquipmentID string
}

// CreateEquipment stores manually entered equipment. Answered by EquipmentBound.
type CreateEquipment struct {
	Fields store.EquipmentFields
}

// FindOpenIssues lists unresolved issues. Answered by OpenIssuesFound.
type FindOpenIssues struct {
	EquipmentID string
}

// LoadIssueSolution loads an open issue's solution. Answered by IssueSolutionLoaded.
type LoadIssueSolution struct {
	IssueID string
}

// EnhanceDescription asks the AI backend to rewrite the description.
// Answered by DescriptionEnhanced.
type EnhanceDescription struct {
	Text string
}

// RunStage runs one matcher stage. Answered by MatchesFound.
type RunStage struct {
	Stage diagnosis.Stage
}

// RecordSuccess persists a confirmed fix. Answered by ResolutionRecorded.
type RecordSuccess struct {
	Candidate   diagnosis.Candidate
	Description string
}

// RecordFailure lowers a solution's effectiveness. Not answered.
type RecordFailure struct {
	Candidate diagnosis.Candidate
}

// Escalate hands the case to a technician. IssueID is set on a retry.
// Answered by Escalated or EscalationFailed.
type Escalate struct {
	IssueID string
}

func (ResolveEquipment) instruction()   {}
func (BindEquipment) instruction()      {}
func (CreateEquipment) instruction()    {}
func (FindOpenIssues) instruction()     {}
func (LoadIssueSolution) instruction()  {}
func (EnhanceDescription) instruction() {}
func (RunStage) instruction()           {}
func (RecordSuccess) instruction()      {}
func (RecordFailure) instruction()      {}
func (Escalate) instruction()           {}
