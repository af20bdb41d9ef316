package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/feedback"
	"github.com/fyrsmithlabs/fixdesk/internal/matcher"
	"github.com/fyrsmithlabs/fixdesk/internal/resolver"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// backend ranks in input order, diagnoses with a fixed answer and cannot
// rewrite or extract anything.
type backend struct {
	ai.Unavailable
}

func (backend) RankSimilarItems(_ context.Context, _ string, cands []ai.Candidate) ([]string, error) {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids, nil
}

func (backend) GenerateDiagnosis(context.Context, string, ai.EquipmentSummary) (*ai.Diagnosis, error) {
	return &ai.Diagnosis{
		PossibleCauses:     []string{"faulty thermostat"},
		SuggestedSolutions: []string{"replace the thermostat"},
		EstimatedCost:      "80-120 EUR",
		PartsNeeded:        []string{"thermostat"},
		Confidence:         70,
	}, nil
}

func (backend) Categorize(context.Context, string, string) ([]string, error) {
	return []string{"heating"}, nil
}

// flakyAssigner fails the first failures calls.
type flakyAssigner struct {
	mu       sync.Mutex
	failures int
	calls    []escalation.AssignRequest
}

func (a *flakyAssigner) Assign(_ context.Context, req escalation.AssignRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if a.failures > 0 {
		a.failures--
		return "", errors.New("dispatcher offline")
	}
	return "asg-1", nil
}

// failingCommits fails every SaveTurn.
type failingCommits struct {
	store.Store
}

func (failingCommits) SaveTurn(context.Context, *store.SessionRecord, []store.MessageRecord) error {
	return errors.New("disk full")
}

// flakyCommits fails SaveTurn while fail is set.
type flakyCommits struct {
	store.Store
	fail *atomic.Bool
}

func (c flakyCommits) SaveTurn(ctx context.Context, rec *store.SessionRecord, msgs []store.MessageRecord) error {
	if c.fail.Load() {
		return errors.New("disk full")
	}
	return c.Store.SaveTurn(ctx, rec, msgs)
}

type fixture struct {
	store    *store.SQLiteStore
	svc      *Service
	assigner *flakyAssigner

	oven           *store.Equipment
	ownSolution    *store.Solution
	borrowedSource *store.Solution
}

func newFixture(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "fixdesk.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, assigner: &flakyAssigner{}}

	f.oven, err = st.CreateEquipment(ctx, "acme", store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"})
	require.NoError(t, err)
	p := &store.Problem{TenantID: "acme", EquipmentID: f.oven.ID, Description: "oven not heating up", ReportedBy: "u0"}
	require.NoError(t, st.CreateProblem(ctx, p))
	f.ownSolution = &store.Solution{ProblemID: p.ID, Treatment: "reset the safety thermostat", Effectiveness: 60, Source: "tenant:acme"}
	require.NoError(t, st.CreateSolution(ctx, f.ownSolution))
	require.NoError(t, st.CreateIssue(ctx, &store.Issue{TenantID: "acme", ProblemID: p.ID, SolutionID: f.ownSolution.ID,
		OpenedBy: "u0", ClosedBy: "u0", Status: store.IssueClosed}))

	other, err := st.CreateEquipment(ctx, "globex", store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"})
	require.NoError(t, err)
	op := &store.Problem{TenantID: "globex", EquipmentID: other.ID, Description: "oven heating slowly", ReportedBy: "g1"}
	require.NoError(t, st.CreateProblem(ctx, op))
	f.borrowedSource = &store.Solution{ProblemID: op.ID, Treatment: "descale the steam generator", Effectiveness: 80, Source: "tenant:globex"}
	require.NoError(t, st.CreateSolution(ctx, f.borrowedSource))

	var s store.Store = st
	if wrap != nil {
		s = wrap(st)
	}
	adapter := backend{}
	f.svc, err = NewService(Options{
		Store:      s,
		Resolver:   resolver.New(s, adapter, nil),
		Matcher:    matcher.New(s, adapter, matcher.Config{MaxResults: 5, MinLexicalOverlap: 0.1}, nil),
		Feedback:   feedback.NewService(s, adapter, feedback.Config{SuccessDelta: 10, FailureDelta: 10}, nil),
		Escalation: escalation.NewService(s, adapter, f.assigner, escalation.Config{}, nil),
		Adapter:    adapter,
		Config:     Config{LockTimeout: 5 * time.Second, DefaultLanguage: "en"},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) say(t *testing.T, id, text string) []conversation.Message {
	t.Helper()
	res, err := f.svc.PostMessage(context.Background(), id, text)
	require.NoError(t, err, "message %q", text)
	return res.Messages
}

func (f *fixture) session(t *testing.T, id string) *conversation.Session {
	t.Helper()
	sess, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, conversation.ValidWalk(sess.History))
	return sess
}

func assertTranscript(t *testing.T, msgs []conversation.Message) {
	t.Helper()
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
		assert.NotEmpty(t, m.ID)
	}
}

func TestSession_RejectAllThenAIWorks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{})
	require.NoError(t, err)

	msgs := f.say(t, id, "The oven is not heating")
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.SenderUser, msgs[0].Sender)
	choices, ok := msgs[1].Payload.(conversation.EquipmentChoiceList)
	require.True(t, ok)
	require.Len(t, choices.Options, 1)
	assert.Equal(t, f.oven.ID, choices.Options[0].ID)

	f.say(t, id, "1")
	assert.Equal(t, conversation.StepFollowUpQuestions, f.session(t, id).Step)

	msgs = f.say(t, id, "skip")
	list, ok := msgs[len(msgs)-1].Payload.(conversation.SolutionList)
	require.True(t, ok)
	assert.Equal(t, diagnosis.SourceCurrentBusiness, list.Source)
	assert.Equal(t, "reset the safety thermostat", list.Items[list.Current].Treatment)

	msgs = f.say(t, id, "no")
	list = msgs[len(msgs)-1].Payload.(conversation.SolutionList)
	assert.Equal(t, diagnosis.SourceOtherBusiness, list.Source)
	assert.Equal(t, "descale the steam generator", list.Items[list.Current].Treatment)
	assert.Equal(t, tenant.BadgeOtherBusiness, list.Items[list.Current].Badge)
	assert.Empty(t, list.Items[list.Current].IssueID)

	own, err := f.store.GetSolution(ctx, f.ownSolution.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, own.Effectiveness)

	msgs = f.say(t, id, "no")
	last := msgs[len(msgs)-1]
	assert.Equal(t, conversation.SenderAI, last.Sender)

	res, err := f.svc.GetDiagnosisResult(ctx, id)
	require.NoError(t, err)
	d, ok := res.(diagnosis.AIDiagnosis)
	require.True(t, ok)
	assert.Equal(t, 70, d.DiagnosisConfidence)

	f.say(t, id, "yes")
	sess := f.session(t, id)
	assert.Equal(t, conversation.StepCompleted, sess.Step)
	assert.Contains(t, sess.History, conversation.StepAISolutionTesting)

	issues, err := f.store.FindIssues(ctx, "acme", f.oven.ID)
	require.NoError(t, err)
	var aiIssues int
	for _, iss := range issues {
		if iss.Solution != nil && iss.Solution.Source == "ai" {
			aiIssues++
			assert.Equal(t, 100, iss.Solution.Effectiveness)
			assert.Equal(t, store.IssueClosed, iss.Issue.Status)
			assert.Equal(t, []string{"heating"}, iss.Problem.Categories)
		}
	}
	assert.Equal(t, 1, aiIssues)

	transcript, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	assertTranscript(t, transcript)
	assert.Equal(t, sess.MessageCount, len(transcript))

	notice, err := f.svc.PostMessage(ctx, id, "thanks!")
	assert.True(t, errs.Is(err, errs.KindValidationFailed))
	assert.Equal(t, conversation.StepCompleted, notice.Step)
	require.Len(t, notice.Messages, 1)
	assert.Equal(t, conversation.CompletedNotice("en"), notice.Messages[0].Text)
	after, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, after, len(transcript))
}

func TestSession_EscalationRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.assigner.failures = 1

	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{EquipmentID: f.oven.ID, Language: "en"})
	require.NoError(t, err)

	f.say(t, id, "oven not heating")
	f.say(t, id, "skip")
	f.say(t, id, "please send a technician")

	sess := f.session(t, id)
	assert.Equal(t, conversation.StepTechnicianAssignment, sess.Step)
	assert.NotEmpty(t, sess.Context.Escalation.IssueID)
	assert.Contains(t, sess.Context.Escalation.LastError, "dispatcher offline")

	f.say(t, id, "try again")
	sess = f.session(t, id)
	assert.Equal(t, conversation.StepCompleted, sess.Step)
	assert.Equal(t, "asg-1", sess.Context.Escalation.AssignmentID)

	require.Len(t, f.assigner.calls, 2)
	assert.Equal(t, f.assigner.calls[0].IssueID, f.assigner.calls[1].IssueID)

	open, err := f.store.FindOpenIssues(ctx, "acme", f.oven.ID)
	require.NoError(t, err)
	require.Len(t, open, 1, "the retry reuses the escalation issue")
	assert.Equal(t, store.IssuePendingTechnician, open[0].Issue.Status)
	assert.Equal(t, "asg-1", open[0].Issue.AssignmentID)
}

func TestSession_ManualEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{Language: "de"})
	require.NoError(t, err)

	msgs := f.say(t, id, "Die Fritteuse piept")
	_, ok := msgs[len(msgs)-1].Payload.(conversation.EquipmentFormPrompt)
	require.True(t, ok)

	f.say(t, id, "Gerät: Fritteuse; Hersteller: Frima")
	sess := f.session(t, id)
	require.NotEmpty(t, sess.EquipmentID)
	eq, err := f.store.GetEquipment(ctx, "acme", sess.EquipmentID)
	require.NoError(t, err)
	assert.Equal(t, "Fritteuse", eq.Type)
	assert.Equal(t, "Frima", eq.Manufacturer)
}

func TestSession_OpenIssueWorks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	p := &store.Problem{TenantID: "acme", EquipmentID: f.oven.ID, Description: "door seal leaking", ReportedBy: "u0"}
	require.NoError(t, f.store.CreateProblem(ctx, p))
	sol := &store.Solution{ProblemID: p.ID, Treatment: "replace the door gasket", Effectiveness: 40, Source: "tenant:acme"}
	require.NoError(t, f.store.CreateSolution(ctx, sol))
	iss := &store.Issue{TenantID: "acme", ProblemID: p.ID, OpenedBy: "u0", Status: store.IssueOpen}
	require.NoError(t, f.store.CreateIssue(ctx, iss))

	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{EquipmentID: f.oven.ID})
	require.NoError(t, err)

	msgs := f.say(t, id, "door is leaking steam")
	issues, ok := msgs[len(msgs)-1].Payload.(conversation.OpenIssueList)
	require.True(t, ok)
	require.Len(t, issues.Issues, 1)
	assert.True(t, issues.Issues[0].HasSolution)

	f.say(t, id, "1")
	res, err := f.svc.RecordSolutionFeedback(ctx, id, "", true)
	require.NoError(t, err)
	assert.Equal(t, conversation.SenderUser, res.Messages[0].Sender)
	assert.Equal(t, conversation.StepCompleted, res.Step)
	assert.Equal(t, conversation.StepCompleted, f.session(t, id).Step)

	d, err := f.store.GetIssue(ctx, "acme", iss.ID)
	require.NoError(t, err)
	assert.Equal(t, store.IssueClosed, d.Issue.Status)
	assert.Equal(t, 50, d.Solution.Effectiveness)
}

func TestSession_ConcurrentMessagesQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{EquipmentID: f.oven.ID})
	require.NoError(t, err)
	f.say(t, id, "oven is cold")

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, answer := range []string{"since Monday", "no error code"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := f.svc.PostMessage(ctx, id, text)
			errCh <- err
		}(answer)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		assert.NoError(t, err)
	}

	sess := f.session(t, id)
	assert.Len(t, sess.Context.FollowUps, 2)
	transcript, err := f.svc.Messages(ctx, id)
	require.NoError(t, err)
	assertTranscript(t, transcript)
	assert.Zero(t, f.svc.locks.size())
}

func TestSession_CommitFailureDiscardsTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s store.Store) store.Store { return failingCommits{Store: s} })

	id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{})
	require.NoError(t, err)

	_, err = f.svc.PostMessage(ctx, id, "oven broken")
	assert.True(t, errs.Is(err, errs.KindPersistenceFailed))

	sess := f.session(t, id)
	assert.Equal(t, conversation.StepInitial, sess.Step)
	assert.Zero(t, sess.MessageCount)
}

func TestSession_RetryAfterCommitFailureWritesOnce(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *atomic.Bool, string) {
		fail := &atomic.Bool{}
		f := newFixture(t, func(s store.Store) store.Store { return flakyCommits{Store: s, fail: fail} })
		id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{EquipmentID: f.oven.ID})
		require.NoError(t, err)
		f.say(t, id, "oven not heating")
		f.say(t, id, "skip")
		require.Equal(t, conversation.StepSolutionTesting, f.session(t, id).Step)
		return f, fail, id
	}

	t.Run("resolution", func(t *testing.T) {
		f, fail, id := setup(t)

		fail.Store(true)
		_, err := f.svc.PostMessage(ctx, id, "yes")
		require.True(t, errs.Is(err, errs.KindPersistenceFailed))
		assert.Equal(t, conversation.StepSolutionTesting, f.session(t, id).Step)

		fail.Store(false)
		f.say(t, id, "yes")
		assert.Equal(t, conversation.StepCompleted, f.session(t, id).Step)

		sol, err := f.store.GetSolution(ctx, f.ownSolution.ID)
		require.NoError(t, err)
		assert.Equal(t, 70, sol.Effectiveness, "success counted once")
	})

	t.Run("escalation", func(t *testing.T) {
		f, fail, id := setup(t)

		fail.Store(true)
		_, err := f.svc.PostMessage(ctx, id, "please send a technician")
		require.True(t, errs.Is(err, errs.KindPersistenceFailed))

		fail.Store(false)
		f.say(t, id, "please send a technician")
		sess := f.session(t, id)
		assert.Equal(t, conversation.StepCompleted, sess.Step)
		assert.Equal(t, "asg-1", sess.Context.Escalation.AssignmentID)

		assert.Len(t, f.assigner.calls, 1)
		open, err := f.store.FindOpenIssues(ctx, "acme", f.oven.ID)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})
}

func TestSession_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name string
		call func() error
		kind errs.Kind
	}{
		{"bad tenant", func() error {
			_, err := f.svc.CreateSession(ctx, "", "u1", CreateOptions{})
			return err
		}, errs.KindValidationFailed},
		{"missing user", func() error {
			_, err := f.svc.CreateSession(ctx, "acme", " ", CreateOptions{})
			return err
		}, errs.KindValidationFailed},
		{"unsupported language", func() error {
			_, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{Language: "xx"})
			return err
		}, errs.KindValidationFailed},
		{"foreign equipment", func() error {
			other, err := f.store.CreateEquipment(ctx, "globex", store.EquipmentFields{Type: "fridge"})
			require.NoError(t, err)
			_, err = f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{EquipmentID: other.ID})
			return err
		}, errs.KindValidationFailed},
		{"unknown session", func() error {
			_, err := f.svc.PostMessage(ctx, "nope", "hello")
			return err
		}, errs.KindNotFound},
		{"empty message", func() error {
			_, err := f.svc.PostMessage(ctx, "nope", "   ")
			return err
		}, errs.KindValidationFailed},
		{"feedback outside testing", func() error {
			id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{})
			require.NoError(t, err)
			_, err = f.svc.RecordSolutionFeedback(ctx, id, "anything", true)
			return err
		}, errs.KindValidationFailed},
		{"no diagnosis yet", func() error {
			id, err := f.svc.CreateSession(ctx, "acme", "u1", CreateOptions{})
			require.NoError(t, err)
			_, err = f.svc.GetDiagnosisResult(ctx, id)
			return err
		}, errs.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err), "%v", err)
		})
	}
}

func TestKeyedLocks(t *testing.T) {
	locks := newKeyedLocks()
	release, err := locks.acquire(context.Background(), "s1")
	require.NoError(t, err)

	other, err := locks.acquire(context.Background(), "s2")
	require.NoError(t, err, "distinct keys do not block")
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, locks.size())
}
