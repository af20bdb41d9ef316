package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/feedback"
	"github.com/fyrsmithlabs/fixdesk/internal/logging"
	"github.com/fyrsmithlabs/fixdesk/internal/matcher"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// turn is the working copy of a session during one call. Nothing in it is
// stored until the call commits.
type turn struct {
	svc       *Service
	sess      conversation.Session
	equipment *store.Equipment
}

// drive runs events through the machine until no instruction is left.
func (t *turn) drive(ctx context.Context, op string, first conversation.Event) ([]conversation.Message, error) {
	var msgs []conversation.Message
	queue := []conversation.Event{first}
	for n := 0; len(queue) > 0; n++ {
		if n == maxEvents {
			return nil, errs.New(errs.KindInternal, op, "", ErrRunaway)
		}
		ev := queue[0]
		queue = queue[1:]

		out, err := t.svc.machine.Transition(conversation.Snapshot{Session: t.sess}, ev)
		if err != nil {
			return nil, machineError(op, err)
		}
		t.sess = out.Apply(t.sess)
		msgs = append(msgs, out.Messages...)

		for _, ins := range out.Instructions {
			next, err := t.execute(ctx, ins)
			if err != nil {
				return nil, err
			}
			if next != nil {
				queue = append(queue, next)
			}
		}
	}
	return msgs, nil
}

func machineError(op string, err error) error {
	switch {
	case errors.Is(err, conversation.ErrUnexpectedEvent),
		errors.Is(err, conversation.ErrUnknownSolution),
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrSessionCompleted):
		return errs.New(errs.KindValidationFailed, op, "", err)
	default:
		return errs.New(errs.KindInternal, op, "", err)
	}
}

func instructionKind(ins conversation.Instruction) string {
	switch ins.(type) {
	case conversation.ResolveEquipment:
		return "resolve_equipment"
	case conversation.BindEquipment:
		return "bind_equipment"
	case conversation.CreateEquipment:
		return "create_equipment"
	case conversation.FindOpenIssues:
		return "find_open_issues"
	case conversation.LoadIssueSolution:
		return "load_issue_solution"
	case conversation.EnhanceDescription:
		return "enhance_description"
	case conversation.RunStage:
		return "run_stage"
	case conversation.RecordSuccess:
		return "record_success"
	case conversation.RecordFailure:
		return "record_failure"
	case conversation.Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// execute performs one instruction and returns the event that answers it.
func (t *turn) execute(ctx context.Context, ins conversation.Instruction) (conversation.Event, error) {
	s := t.svc
	s.metrics.instructions.WithLabelValues(instructionKind(ins)).Inc()

	switch in := ins.(type) {
	case conversation.ResolveEquipment:
		res, err := s.resolver.Resolve(ctx, t.sess.TenantID, in.Text)
		if err != nil {
			return nil, err
		}
		return conversation.EquipmentResolved{Candidates: res.Candidates, ManualEntryRequired: res.ManualEntryRequired}, nil

	case conversation.BindEquipment:
		eq, err := s.resolver.Get(ctx, t.sess.TenantID, in.EquipmentID)
		if err != nil {
			return nil, err
		}
		return t.bound(eq), nil

	case conversation.CreateEquipment:
		eq, err := s.resolver.Create(ctx, t.sess.TenantID, in.Fields)
		if err != nil {
			return nil, err
		}
		return t.bound(eq), nil

	case conversation.FindOpenIssues:
		details, err := s.store.FindOpenIssues(ctx, t.sess.TenantID, in.EquipmentID)
		if err != nil {
			return nil, errs.Persistence("session.find_open_issues", err)
		}
		issues := make([]conversation.OpenIssue, 0, len(details))
		for _, d := range details {
			issues = append(issues, conversation.OpenIssue{
				IssueID:     d.Issue.ID,
				Description: d.Problem.Description,
				Status:      string(d.Issue.Status),
				HasSolution: d.Solution != nil,
			})
		}
		return conversation.OpenIssuesFound{Issues: issues}, nil

	case conversation.LoadIssueSolution:
		return t.loadIssueSolution(ctx, in.IssueID)

	case conversation.EnhanceDescription:
		eq, err := t.currentEquipment(ctx)
		if err != nil {
			return nil, err
		}
		text, err := s.adapter.EnhanceDescription(ctx, in.Text, summaryOf(eq))
		if err != nil {
			s.logger.Info("description enhancement unavailable",
				append(logging.ContextFields(ctx), zap.Error(err))...)
			return conversation.DescriptionEnhanced{OK: false}, nil
		}
		return conversation.DescriptionEnhanced{Text: text, OK: true}, nil

	case conversation.RunStage:
		eq, err := t.currentEquipment(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.matcher.Run(ctx, in.Stage, matcher.Request{
			TenantID:    t.sess.TenantID,
			Equipment:   *eq,
			Description: t.sess.Context.ProblemText(),
			Tried:       t.sess.Context.Tried,
		})
		if err != nil {
			return nil, err
		}
		return conversation.MatchesFound{Stage: in.Stage, Result: res}, nil

	case conversation.RecordSuccess:
		eq, err := t.currentEquipment(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.feedback.RecordSuccess(ctx, t.outcome(eq, in.Candidate, in.Description))
		if err != nil {
			return nil, err
		}
		return conversation.ResolutionRecorded{IssueID: res.IssueID}, nil

	case conversation.RecordFailure:
		eq, err := t.currentEquipment(ctx)
		if err != nil {
			return nil, err
		}
		s.feedback.RecordFailure(ctx, t.outcome(eq, in.Candidate, t.sess.Context.ProblemText()))
		return nil, nil

	case conversation.Escalate:
		return t.escalate(ctx, in.IssueID)

	default:
		return nil, errs.New(errs.KindInternal, "session.execute", fmt.Sprintf("unknown instruction %T", ins), nil)
	}
}

func (t *turn) bound(eq *store.Equipment) conversation.Event {
	t.equipment = eq
	return conversation.EquipmentBound{Equipment: *eq, FollowUpQuestions: t.svc.catalog.Questions(eq.Type)}
}

// currentEquipment loads the session's equipment once per call.
func (t *turn) currentEquipment(ctx context.Context) (*store.Equipment, error) {
	if t.equipment != nil && t.equipment.ID == t.sess.EquipmentID {
		return t.equipment, nil
	}
	if t.sess.EquipmentID == "" {
		return nil, errs.New(errs.KindInternal, "session.equipment", "session has no equipment", nil)
	}
	eq, err := t.svc.resolver.Get(ctx, t.sess.TenantID, t.sess.EquipmentID)
	if err != nil {
		return nil, err
	}
	t.equipment = eq
	return eq, nil
}

func (t *turn) loadIssueSolution(ctx context.Context, issueID string) (conversation.Event, error) {
	d, err := t.svc.store.GetIssue(ctx, t.sess.TenantID, issueID)
	if errors.Is(err, store.ErrNotFound) {
		return conversation.IssueSolutionLoaded{}, nil
	}
	if err != nil {
		return nil, errs.Persistence("session.load_issue_solution", err)
	}
	if err := tenant.CheckAccess(t.sess.TenantID, d.Issue.TenantID); err != nil {
		t.svc.logger.Error("issue of another tenant returned by store",
			append(logging.ContextFields(ctx), zap.String("issue_id", issueID))...)
		return conversation.IssueSolutionLoaded{}, nil
	}
	if d.Solution == nil {
		return conversation.IssueSolutionLoaded{}, nil
	}
	return conversation.IssueSolutionLoaded{Candidate: &diagnosis.Candidate{
		Origin:        diagnosis.OriginOpenIssue,
		Treatment:     d.Solution.Treatment,
		IssueID:       d.Issue.ID,
		ProblemID:     d.Problem.ID,
		SolutionID:    d.Solution.ID,
		Effectiveness: d.Solution.Effectiveness,
		Badge:         tenant.BadgeCurrentBusiness,
	}}, nil
}

func (t *turn) outcome(eq *store.Equipment, c diagnosis.Candidate, description string) feedback.Outcome {
	return feedback.Outcome{
		SessionID:     t.sess.ID,
		TenantID:      t.sess.TenantID,
		UserID:        t.sess.UserID,
		EquipmentID:   eq.ID,
		EquipmentType: eq.Type,
		Description:   description,
		Candidate:     c,
	}
}

// escalate hands the case to a technician. Only a store failure fails the
// call; an assignment failure is answered with EscalationFailed so the user
// can retry.
func (t *turn) escalate(ctx context.Context, issueID string) (conversation.Event, error) {
	eq, err := t.currentEquipment(ctx)
	if err != nil {
		return nil, err
	}
	c := t.sess.Context
	esc := escalation.Case{
		SessionID:   t.sess.ID,
		TenantID:    t.sess.TenantID,
		UserID:      t.sess.UserID,
		Equipment:   *eq,
		Description: c.InitialDescription,
		Tried:       c.TriedTreatments,
		IssueID:     issueID,
	}
	if c.EnhancementApproved {
		esc.EnhancedDescription = c.EnhancedDescription
	}
	for _, f := range c.FollowUps {
		esc.FollowUps = append(esc.FollowUps, escalation.FollowUp{Question: f.Question, Answer: f.Answer})
	}

	a, err := t.svc.escalation.Escalate(ctx, esc)
	if err != nil {
		if errs.Is(err, errs.KindPersistenceFailed) || errs.Is(err, errs.KindValidationFailed) {
			return nil, err
		}
		failed := conversation.EscalationFailed{IssueID: issueID, Reason: err.Error()}
		if a != nil && a.IssueID != "" {
			failed.IssueID = a.IssueID
		}
		return failed, nil
	}
	return conversation.Escalated{IssueID: a.IssueID, AssignmentID: a.ID}, nil
}

func summaryOf(eq *store.Equipment) ai.EquipmentSummary {
	return ai.EquipmentSummary{
		Type:         eq.Type,
		Manufacturer: eq.Manufacturer,
		Model:        eq.Model,
		Category:     eq.Category,
	}
}
