package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// Errors returned by Transition. None of them changes the session.
var (
	ErrUnexpectedEvent  = errors.New("event not expected in this step")
	ErrSessionCompleted = errors.New("session is completed")
	ErrUnknownSolution  = errors.New("solution was not offered in this session")
	ErrEmptyMessage     = errors.New("message is empty")
)

// Snapshot is the state a transition starts from.
type Snapshot struct {
	Session Session
}

// Outcome is the result of one transition.
type Outcome struct {
	// Entered lists the steps entered, in order. It may be empty.
	Entered     []Step
	Context     Context
	EquipmentID string
	// Messages have no ID, Seq or timestamp yet.
	Messages     []Message
	Instructions []Instruction
}

// Apply returns s with the outcome applied. s is not modified.
func (o Outcome) Apply(s Session) Session {
	s.History = append(append([]Step(nil), s.History...), o.Entered...)
	if n := len(o.Entered); n > 0 {
		s.Step = o.Entered[n-1]
	}
	s.Context = o.Context
	if o.EquipmentID != "" {
		s.EquipmentID = o.EquipmentID
	}
	return s
}

// Machine is the conversation transition function. It performs no I/O and
// is safe for concurrent use.
type Machine struct{}

// NewMachine returns a Machine.
func NewMachine() *Machine {
	return &Machine{}
}

// Transition applies one event to the snapshot.
func (m *Machine) Transition(s Snapshot, e Event) (Outcome, error) {
	sess := s.Session
	if !sess.Step.Valid() {
		return Outcome{}, fmt.Errorf("unknown step %q", sess.Step)
	}
	if sess.Completed() {
		return Outcome{}, ErrSessionCompleted
	}

	t := &turn{
		sess: sess,
		step: sess.Step,
		ctx:  sess.Context.clone(),
		txt:  textsFor(sess.Language),
	}

	var err error
	switch ev := e.(type) {
	case UserMessage:
		err = t.userMessage(ev)
	case EquipmentResolved:
		err = t.equipmentResolved(ev)
	case EquipmentBound:
		err = t.equipmentBound(ev)
	case OpenIssuesFound:
		err = t.openIssuesFound(ev)
	case IssueSolutionLoaded:
		err = t.issueSolutionLoaded(ev)
	case DescriptionEnhanced:
		err = t.descriptionEnhanced(ev)
	case MatchesFound:
		err = t.matchesFound(ev)
	case SolutionFeedback:
		err = t.solutionFeedback(ev)
	case ResolutionRecorded:
		err = t.resolutionRecorded(ev)
	case Escalated:
		err = t.escalated(ev)
	case EscalationFailed:
		err = t.escalationFailed(ev)
	default:
		err = t.unexpected(e)
	}
	if err == nil {
		err = t.err
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Entered:      t.entered,
		Context:      t.ctx,
		EquipmentID:  t.equipmentID,
		Messages:     t.messages,
		Instructions: t.instructions,
	}, nil
}

// turn accumulates one transition.
type turn struct {
	sess Session
	step Step
	ctx  Context
	txt  texts

	entered      []Step
	equipmentID  string
	messages     []Message
	instructions []Instruction
	err          error
}

func (t *turn) enter(steps ...Step) {
	for _, s := range steps {
		if t.err != nil {
			return
		}
		if !CanTransition(t.step, s) {
			t.err = fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.step, s)
			return
		}
		t.entered = append(t.entered, s)
		t.step = s
	}
}

func (t *turn) unexpected(e Event) error {
	return fmt.Errorf("%w: %T in %s", ErrUnexpectedEvent, e, t.step)
}

func (t *turn) expect(e Event, steps ...Step) error {
	for _, s := range steps {
		if t.step == s {
			return nil
		}
	}
	return t.unexpected(e)
}

func (t *turn) user(text string) {
	t.messages = append(t.messages, Message{Sender: SenderUser, Text: text})
}

func (t *turn) say(text string, p Payload) {
	t.messages = append(t.messages, Message{Sender: SenderSystem, Text: text, Payload: p})
}

func (t *turn) do(ins Instruction) {
	t.instructions = append(t.instructions, ins)
}

func (t *turn) userMessage(ev UserMessage) error {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return ErrEmptyMessage
	}

	switch t.step {
	case StepInitial:
		t.user(text)
		t.ctx.InitialDescription = text
		t.enter(StepApplianceRecognition)
		if t.sess.EquipmentID != "" {
			t.do(BindEquipment{EquipmentID: t.sess.EquipmentID})
		} else {
			t.do(ResolveEquipment{Text: text})
		}

	case StepApplianceSelection:
		t.user(text)
		t.selectEquipment(text)

	case StepUserConfirmation:
		t.user(text)
		t.confirmOpenIssue(text)

	case StepFollowUpQuestions:
		t.user(text)
		t.answerQuestion(text)

	case StepSolutionTesting:
		t.user(text)
		cur, ok := t.ctx.Current()
		switch {
		case wantsTechnician(text):
			t.escalate()
		case ok && isYes(text):
			t.feedback(cur, true)
		case ok && isNo(text):
			t.feedback(cur, false)
		default:
			t.enter(StepSolutionTesting)
			t.say(t.txt.notUnderstood+" "+t.txt.askWorked, nil)
		}

	case StepTechnicianAssignment:
		t.user(text)
		if t.ctx.Escalation.AssignmentID == "" {
			t.enter(StepTechnicianAssignment)
			t.requestEscalation()
		}

	default:
		return t.unexpected(ev)
	}
	return nil
}

func (t *turn) selectEquipment(text string) {
	if !t.ctx.ManualEntry {
		if n, ok := parseChoice(text, len(t.ctx.EquipmentChoices)); ok {
			t.do(BindEquipment{EquipmentID: t.ctx.EquipmentChoices[n-1].ID})
			return
		}
		for _, c := range t.ctx.EquipmentChoices {
			if strings.EqualFold(strings.TrimSpace(text), c.ID) {
				t.do(BindEquipment{EquipmentID: c.ID})
				return
			}
		}
		if isNew(text) {
			t.ctx.ManualEntry = true
			t.enter(StepApplianceSelection)
			t.say(t.txt.equipmentForm, EquipmentFormPrompt{Fields: t.txt.formFields})
			return
		}
	}

	if fields, ok := parseEquipmentForm(text, t.ctx.ManualEntry); ok {
		t.do(CreateEquipment{Fields: fields})
		return
	}

	t.enter(StepApplianceSelection)
	if t.ctx.ManualEntry {
		t.say(t.txt.notUnderstood+" "+t.txt.equipmentForm, EquipmentFormPrompt{Fields: t.txt.formFields})
		return
	}
	t.say(t.txt.notUnderstood+" "+t.txt.chooseEquipment, EquipmentChoiceList{Options: t.ctx.EquipmentChoices})
}

func (t *turn) equipmentResolved(ev EquipmentResolved) error {
	if err := t.expect(ev, StepApplianceRecognition); err != nil {
		return err
	}
	t.enter(StepApplianceSelection)

	if ev.ManualEntryRequired || len(ev.Candidates) == 0 {
		t.ctx.ManualEntry = true
		t.say(t.txt.equipmentForm, EquipmentFormPrompt{Fields: t.txt.formFields})
		return nil
	}

	t.ctx.EquipmentChoices = make([]EquipmentOption, len(ev.Candidates))
	for i, e := range ev.Candidates {
		t.ctx.EquipmentChoices[i] = EquipmentOption{Number: i + 1, ID: e.ID, Label: e.Label()}
	}
	t.say(t.txt.chooseEquipment, EquipmentChoiceList{Options: t.ctx.EquipmentChoices})
	return nil
}

func (t *turn) equipmentBound(ev EquipmentBound) error {
	if err := t.expect(ev, StepApplianceRecognition, StepApplianceSelection); err != nil {
		return err
	}
	if t.step == StepApplianceRecognition {
		t.enter(StepApplianceSelection)
	}

	t.equipmentID = ev.Equipment.ID
	t.ctx.EquipmentType = ev.Equipment.Type
	t.ctx.EquipmentLabel = ev.Equipment.Label()
	t.ctx.EquipmentChoices = nil
	t.ctx.ManualEntry = false
	t.ctx.Questions = append([]string(nil), ev.FollowUpQuestions...)

	t.say(fmt.Sprintf(t.txt.equipmentBound, t.ctx.EquipmentLabel), nil)
	t.enter(StepCheckingOpenIssues)
	t.do(FindOpenIssues{EquipmentID: ev.Equipment.ID})
	return nil
}

func (t *turn) openIssuesFound(ev OpenIssuesFound) error {
	if err := t.expect(ev, StepCheckingOpenIssues); err != nil {
		return err
	}
	if len(ev.Issues) == 0 {
		t.enter(StepFollowUpQuestions)
		t.askNext()
		return nil
	}

	t.ctx.OpenIssues = make([]OpenIssue, len(ev.Issues))
	for i, iss := range ev.Issues {
		iss.Number = i + 1
		t.ctx.OpenIssues[i] = iss
	}
	t.enter(StepOpenIssuesDisplay, StepUserConfirmation)
	t.say(t.txt.openIssues, OpenIssueList{Issues: t.ctx.OpenIssues})
	return nil
}

func (t *turn) confirmOpenIssue(text string) {
	if isNew(text) || isNo(text) {
		t.enter(StepFollowUpQuestions)
		t.askNext()
		return
	}
	if n, ok := parseChoice(text, len(t.ctx.OpenIssues)); ok {
		t.do(LoadIssueSolution{IssueID: t.ctx.OpenIssues[n-1].IssueID})
		return
	}
	t.enter(StepUserConfirmation)
	t.say(t.txt.notUnderstood+" "+t.txt.openIssues, OpenIssueList{Issues: t.ctx.OpenIssues})
}

func (t *turn) issueSolutionLoaded(ev IssueSolutionLoaded) error {
	if err := t.expect(ev, StepUserConfirmation); err != nil {
		return err
	}
	if ev.Candidate == nil || t.ctx.HasTried(*ev.Candidate) {
		t.say(t.txt.issueNoSolution, nil)
		t.enter(StepFollowUpQuestions)
		t.askNext()
		return nil
	}
	c := *ev.Candidate
	c.Origin = diagnosis.OriginOpenIssue
	t.ctx.Stage = ""
	t.ctx.Candidates = []diagnosis.Candidate{c}
	t.ctx.Cursor = 0
	t.present()
	return nil
}

// askNext asks the next unanswered question, or requests the enhanced
// description once all are answered.
func (t *turn) askNext() {
	if i := len(t.ctx.FollowUps); i < len(t.ctx.Questions) {
		t.say(t.ctx.Questions[i], nil)
		return
	}
	t.do(EnhanceDescription{Text: t.ctx.rawDescription()})
}

func (t *turn) answerQuestion(text string) {
	if t.ctx.AwaitingApproval {
		switch {
		case isYes(text):
			t.ctx.EnhancementApproved = true
		case isNo(text):
			t.ctx.EnhancementApproved = false
		default:
			t.enter(StepFollowUpQuestions)
			t.say(t.txt.notUnderstood+" "+fmt.Sprintf(t.txt.confirmEnhanced, t.ctx.EnhancedDescription),
				ConfirmationRequest{Text: t.ctx.EnhancedDescription})
			return
		}
		t.ctx.AwaitingApproval = false
		t.startSearch()
		return
	}

	if isSkip(text) {
		t.startSearch()
		return
	}
	if i := len(t.ctx.FollowUps); i < len(t.ctx.Questions) {
		t.ctx.FollowUps = append(t.ctx.FollowUps, FollowUp{Question: t.ctx.Questions[i], Answer: text})
		t.enter(StepFollowUpQuestions)
		t.askNext()
		return
	}
	t.ctx.InitialDescription += "\n" + text
	t.startSearch()
}

func (t *turn) descriptionEnhanced(ev DescriptionEnhanced) error {
	if err := t.expect(ev, StepFollowUpQuestions); err != nil {
		return err
	}
	text := strings.TrimSpace(ev.Text)
	if !ev.OK || text == "" {
		t.startSearch()
		return nil
	}
	t.ctx.EnhancedDescription = text
	t.ctx.AwaitingApproval = true
	t.say(fmt.Sprintf(t.txt.confirmEnhanced, text), ConfirmationRequest{Text: text})
	return nil
}

func (t *turn) startSearch() {
	t.say(t.txt.searching, nil)
	t.enter(StepCheckingSimilarIssues)
	t.do(RunStage{Stage: diagnosis.StageA})
}

func (t *turn) runAI() {
	t.ctx.AILoading = true
	t.say(t.txt.aiThinking, nil)
	t.enter(StepAISolutionGeneration)
	t.do(RunStage{Stage: diagnosis.StageC})
}

func stageStep(s diagnosis.Stage) Step {
	switch s {
	case diagnosis.StageA:
		return StepCheckingSimilarIssues
	case diagnosis.StageB:
		return StepMatchingSolutions
	case diagnosis.StageC:
		return StepAISolutionGeneration
	default:
		return ""
	}
}

func (t *turn) matchesFound(ev MatchesFound) error {
	if step := stageStep(ev.Stage); step == "" || step != t.step {
		return t.unexpected(ev)
	}
	if ev.Result != nil {
		t.ctx.LastResult = diagnosis.Holder{Result: ev.Result}
	}
	if ev.Stage == diagnosis.StageC {
		t.ctx.AILoading = false
		t.ctx.AITried = true
	}

	var cands []diagnosis.Candidate
	if ev.Result != nil {
		cands = t.ctx.untried(ev.Result.Candidates())
	}
	if len(cands) > 0 {
		t.ctx.Stage = ev.Stage
		t.ctx.Candidates = cands
		t.ctx.Cursor = 0
		t.present()
		return nil
	}

	switch next := ev.Stage.Next(); {
	case next == diagnosis.StageB:
		t.enter(StepMatchingSolutions)
		t.do(RunStage{Stage: next})
	case next == diagnosis.StageC && !t.ctx.AITried:
		t.runAI()
	default:
		t.enter(StepSolutionPresentation)
		t.say(t.txt.noMoreSolutions, nil)
		t.escalate()
	}
	return nil
}

func sourceOf(o diagnosis.Origin) diagnosis.Source {
	switch o {
	case diagnosis.OriginProblem:
		return diagnosis.SourceOtherBusiness
	case diagnosis.OriginAI:
		return diagnosis.SourceAIGenerated
	default:
		return diagnosis.SourceCurrentBusiness
	}
}

// present shows the candidate at the cursor and waits for feedback.
func (t *turn) present() {
	cur, _ := t.ctx.Current()
	view := candidateView{treatment: cur.Treatment, badge: cur.Badge, cause: cur.Cause, ai: cur.Origin == diagnosis.OriginAI}
	if view.badge == "" {
		view.badge = tenant.BadgeCurrentBusiness
	}
	sender := SenderSystem
	if view.ai {
		sender = SenderAI
	}

	t.enter(StepSolutionPresentation, StepSolutionTesting)
	t.messages = append(t.messages, Message{
		Sender: sender,
		Text:   t.txt.presentation(view),
		Payload: SolutionList{
			Stage:   t.ctx.Stage,
			Source:  sourceOf(cur.Origin),
			Current: t.ctx.Cursor,
			Items:   append([]diagnosis.Candidate(nil), t.ctx.Candidates...),
		},
	})
}

func (t *turn) solutionFeedback(ev SolutionFeedback) error {
	if err := t.expect(ev, StepSolutionTesting); err != nil {
		return err
	}

	idx := t.ctx.Cursor
	if want := strings.TrimSpace(ev.SolutionText); want != "" {
		idx = -1
		for i, c := range t.ctx.Candidates {
			if strings.EqualFold(strings.TrimSpace(c.Treatment), want) {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(t.ctx.Candidates) || t.ctx.HasTried(t.ctx.Candidates[idx]) {
		return ErrUnknownSolution
	}
	cand := t.ctx.Candidates[idx]

	if ev.Worked {
		t.ctx.Cursor = idx
		t.user(fmt.Sprintf(t.txt.feedbackWorked, cand.Treatment))
	} else {
		t.user(fmt.Sprintf(t.txt.feedbackFailed, cand.Treatment))
	}
	t.feedback(cand, ev.Worked)
	return nil
}

func (t *turn) feedback(cand diagnosis.Candidate, worked bool) {
	t.enter(StepSolutionFeedback)

	if worked {
		if cand.Origin == diagnosis.OriginAI {
			t.enter(StepAISolutionTesting)
		}
		t.do(RecordSuccess{Candidate: cand, Description: t.ctx.ProblemText()})
		return
	}

	t.ctx.Tried = append(t.ctx.Tried, cand.Key())
	t.ctx.TriedTreatments = append(t.ctx.TriedTreatments, cand.Treatment)
	t.do(RecordFailure{Candidate: cand})

	// A rejection may name any candidate, so the scan wraps from the cursor.
	n := len(t.ctx.Candidates)
	for off := 0; off < n; off++ {
		i := (t.ctx.Cursor + off) % n
		if !t.ctx.HasTried(t.ctx.Candidates[i]) {
			t.ctx.Cursor = i
			t.present()
			return
		}
	}
	t.nextStage()
}

// nextStage moves on once the current candidates are exhausted.
func (t *turn) nextStage() {
	next := t.ctx.Stage.Next()
	switch {
	case t.ctx.Stage == "":
		t.startSearch()
	case next == diagnosis.StageB:
		t.enter(StepMatchingSolutions)
		t.do(RunStage{Stage: next})
	case next == diagnosis.StageC && !t.ctx.AITried:
		t.runAI()
	default:
		t.say(t.txt.noMoreSolutions, nil)
		t.escalate()
	}
}

func (t *turn) escalate() {
	t.enter(StepTechnicianAssignment)
	t.requestEscalation()
}

func (t *turn) requestEscalation() {
	if t.ctx.Escalation.AssignmentID != "" {
		return
	}
	t.ctx.Escalation.Requested = true
	t.ctx.Escalation.Attempts++
	t.say(t.txt.handOff, nil)
	t.do(Escalate{IssueID: t.ctx.Escalation.IssueID})
}

func (t *turn) resolutionRecorded(ev ResolutionRecorded) error {
	if err := t.expect(ev, StepSolutionFeedback, StepAISolutionTesting); err != nil {
		return err
	}
	t.ctx.ResolvedIssueID = ev.IssueID
	t.say(t.txt.resolved, nil)
	t.enter(StepCompleted)
	return nil
}

func (t *turn) escalated(ev Escalated) error {
	if err := t.expect(ev, StepTechnicianAssignment); err != nil {
		return err
	}
	t.ctx.Escalation.AssignmentID = ev.AssignmentID
	if ev.IssueID != "" {
		t.ctx.Escalation.IssueID = ev.IssueID
	}
	t.ctx.Escalation.LastError = ""
	t.say(fmt.Sprintf(t.txt.assigned, ev.AssignmentID), nil)
	t.enter(StepCompleted)
	return nil
}

func (t *turn) escalationFailed(ev EscalationFailed) error {
	if err := t.expect(ev, StepTechnicianAssignment); err != nil {
		return err
	}
	if ev.IssueID != "" {
		t.ctx.Escalation.IssueID = ev.IssueID
	}
	t.ctx.Escalation.LastError = ev.Reason
	t.say(t.txt.escalationFailed, nil)
	return nil
}
