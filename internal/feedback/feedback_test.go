package feedback

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

type categorizer struct {
	ai.Unavailable
	labels []string
}

func (c categorizer) Categorize(context.Context, string, string) ([]string, error) {
	return c.labels, nil
}

type seeded struct {
	equipment *store.Equipment
	problem   *store.Problem
	solution  *store.Solution
	issue     *store.Issue
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "fixdesk.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.SQLiteStore, tenantID string, effectiveness int, status store.IssueStatus) seeded {
	t.Helper()
	ctx := context.Background()
	eq, err := s.CreateEquipment(ctx, tenantID, store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"})
	require.NoError(t, err)
	p := &store.Problem{TenantID: tenantID, EquipmentID: eq.ID, Description: "oven not heating", ReportedBy: "u0"}
	require.NoError(t, s.CreateProblem(ctx, p))
	sol := &store.Solution{ProblemID: p.ID, Treatment: "replace heating element", Effectiveness: effectiveness, Source: "tenant:" + tenantID}
	require.NoError(t, s.CreateSolution(ctx, sol))
	iss := &store.Issue{TenantID: tenantID, ProblemID: p.ID, OpenedBy: "u0", Status: status}
	require.NoError(t, s.CreateIssue(ctx, iss))
	return seeded{equipment: eq, problem: p, solution: sol, issue: iss}
}

func TestRecordSuccess_OpenIssue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	own := seed(t, s, "acme", 95, store.IssueOpen)
	svc := NewService(s, nil, Config{SuccessDelta: 10, FailureDelta: 10}, nil)

	res, err := svc.RecordSuccess(ctx, Outcome{
		TenantID: "acme", UserID: "u1", EquipmentID: own.equipment.ID,
		Candidate: diagnosis.Candidate{Origin: diagnosis.OriginOpenIssue, IssueID: own.issue.ID, SolutionID: own.solution.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, own.issue.ID, res.IssueID)
	assert.Equal(t, 100, res.Effectiveness)

	d, err := s.GetIssue(ctx, "acme", own.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, store.IssueClosed, d.Issue.Status)
	assert.Equal(t, "u1", d.Issue.ClosedBy)
	assert.Equal(t, own.solution.ID, d.Issue.SolutionID)
}

func TestRecordSuccess_BorrowedSolution(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	other := seed(t, s, "globex", 40, store.IssueClosed)
	eq, err := s.CreateEquipment(ctx, "acme", store.EquipmentFields{Type: "oven"})
	require.NoError(t, err)

	svc := NewService(s, categorizer{labels: []string{"heating"}}, Config{SuccessDelta: 10}, nil)
	res, err := svc.RecordSuccess(ctx, Outcome{
		TenantID: "acme", UserID: "u1", EquipmentID: eq.ID, EquipmentType: "oven",
		Description: "no heat at all",
		Candidate:   diagnosis.Candidate{Origin: diagnosis.OriginProblem, ProblemID: other.problem.ID, SolutionID: other.solution.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Effectiveness)
	assert.Equal(t, other.solution.ID, res.SolutionID)

	issues, err := s.FindIssues(ctx, "acme", eq.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, store.IssueClosed, issues[0].Issue.Status)
	assert.Equal(t, "no heat at all", issues[0].Problem.Description)
	assert.Equal(t, []string{"heating"}, issues[0].Problem.Categories)
	assert.Equal(t, other.solution.ID, issues[0].Solution.ID)
}

func TestRecordSuccess_AIGenerated(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	eq, err := s.CreateEquipment(ctx, "acme", store.EquipmentFields{Type: "oven"})
	require.NoError(t, err)

	svc := NewService(s, nil, Config{SuccessDelta: 10}, nil)
	res, err := svc.RecordSuccess(ctx, Outcome{
		TenantID: "acme", UserID: "u1", EquipmentID: eq.ID, EquipmentType: "oven",
		Description: "fan noisy",
		Candidate:   diagnosis.Candidate{Origin: diagnosis.OriginAI, Treatment: "tighten the fan blade", Effectiveness: 70},
	})
	require.NoError(t, err)
	assert.Equal(t, AIEffectiveness, res.Effectiveness)

	issues, err := s.FindIssues(ctx, "acme", eq.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1, "exactly one problem and issue")
	got := issues[0]
	assert.Equal(t, store.IssueClosed, got.Issue.Status)
	assert.Equal(t, res.ProblemID, got.Problem.ID)
	require.NotNil(t, got.Solution)
	assert.Equal(t, "ai", got.Solution.Source)
	assert.Equal(t, 100, got.Solution.Effectiveness)
	assert.Equal(t, "tighten the fan blade", got.Solution.Treatment)
	assert.Empty(t, got.Problem.Categories)
}

type failingCases struct {
	store.CaseStore
	adjusted []int
}

func (f *failingCases) RecordResolution(context.Context, store.Resolution) (*store.ResolutionResult, error) {
	return nil, errors.New("database is locked")
}

func (f *failingCases) AdjustEffectiveness(_ context.Context, _ string, delta int) (int, error) {
	f.adjusted = append(f.adjusted, delta)
	return 0, errors.New("database is locked")
}

func TestRecordSuccess_Errors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&failingCases{}, nil, Config{}, nil)

	tests := []struct {
		name string
		o    Outcome
		kind errs.Kind
	}{
		{
			name: "missing user",
			o:    Outcome{TenantID: "acme", Candidate: diagnosis.Candidate{Origin: diagnosis.OriginAI, Treatment: "x"}},
			kind: errs.KindValidationFailed,
		},
		{
			name: "issue without solution",
			o:    Outcome{TenantID: "acme", UserID: "u1", Candidate: diagnosis.Candidate{Origin: diagnosis.OriginIssue, IssueID: "i1"}},
			kind: errs.KindValidationFailed,
		},
		{
			name: "unknown origin",
			o:    Outcome{TenantID: "acme", UserID: "u1", Candidate: diagnosis.Candidate{Origin: "magic"}},
			kind: errs.KindValidationFailed,
		},
		{
			name: "store failure",
			o: Outcome{TenantID: "acme", UserID: "u1", EquipmentID: "eq1",
				Candidate: diagnosis.Candidate{Origin: diagnosis.OriginAI, Treatment: "x"}},
			kind: errs.KindPersistenceFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordSuccess(ctx, tt.o)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("lowers and clamps", func(t *testing.T) {
		s := newStore(t)
		own := seed(t, s, "acme", 5, store.IssueClosed)
		svc := NewService(s, nil, Config{FailureDelta: 10}, nil)

		svc.RecordFailure(ctx, Outcome{TenantID: "acme", UserID: "u1",
			Candidate: diagnosis.Candidate{Origin: diagnosis.OriginIssue, SolutionID: own.solution.ID}})

		sol, err := s.GetSolution(ctx, own.solution.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, sol.Effectiveness)
	})

	t.Run("ai candidates touch nothing", func(t *testing.T) {
		f := &failingCases{}
		svc := NewService(f, nil, Config{FailureDelta: 10}, nil)
		svc.RecordFailure(ctx, Outcome{Candidate: diagnosis.Candidate{Origin: diagnosis.OriginAI, Treatment: "x"}})
		assert.Empty(t, f.adjusted)
	})

	t.Run("store errors are swallowed", func(t *testing.T) {
		f := &failingCases{}
		svc := NewService(f, nil, Config{FailureDelta: 10}, nil)
		assert.NotPanics(t, func() {
			svc.RecordFailure(ctx, Outcome{Candidate: diagnosis.Candidate{Origin: diagnosis.OriginProblem, SolutionID: "s1"}})
		})
		assert.Equal(t, []int{-10}, f.adjusted)
	})
}
