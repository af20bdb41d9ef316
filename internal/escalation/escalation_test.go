package escalation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

type recordingAssigner struct {
	requests []AssignRequest
	err      error
}

func (r *recordingAssigner) Assign(_ context.Context, req AssignRequest) (string, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return "", r.err
	}
	return "asg-1", nil
}

type enhancer struct {
	ai.Unavailable
	text string
}

func (e enhancer) EnhanceDescription(context.Context, string, ai.EquipmentSummary) (string, error) {
	return e.text, nil
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "fixdesk.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCase(t *testing.T, s *store.SQLiteStore) Case {
	t.Helper()
	eq, err := s.CreateEquipment(context.Background(), "acme",
		store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"})
	require.NoError(t, err)
	return Case{
		TenantID:    "acme",
		UserID:      "u1",
		Equipment:   *eq,
		Description: "oven does not heat",
		FollowUps:   []FollowUp{{Question: "Error code shown?", Answer: "E34"}},
		Tried:       []string{"reset the breaker", "descale"},
	}
}

func TestSummarize(t *testing.T) {
	c := Case{
		Equipment:           store.Equipment{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"},
		Description:         " oven does not heat ",
		EnhancedDescription: "Oven stays cold after preheat",
		FollowUps:           []FollowUp{{Question: "Error code shown?", Answer: "E34"}},
		Tried:               []string{"reset the breaker"},
	}
	want := "Equipment: Rational iCombi Pro (oven)\n" +
		"Problem: oven does not heat\n" +
		"Details: Oven stays cold after preheat\n" +
		"Answers:\n- Error code shown? E34\n" +
		"Already tried:\n- reset the breaker"
	assert.Equal(t, want, Summarize(c))
}

func TestPriority(t *testing.T) {
	svc := NewService(nil, nil, nil, Config{}, nil)
	tests := []struct {
		name string
		c    Case
		want Priority
	}{
		{"plain fault", Case{Description: "door gasket torn"}, PriorityMedium},
		{"gas smell", Case{Description: "smells of gas near the burner"}, PriorityHigh},
		{"leak in answer", Case{Description: "fridge warm", FollowUps: []FollowUp{{Answer: "water leaking underneath"}}}, PriorityHigh},
		{"sparks in enhanced text", Case{EnhancedDescription: "Sparks visible at the plug."}, PriorityHigh},
		{"german smoke", Case{Description: "Aus dem Ofen kommt Rauch"}, PriorityHigh},
		{"german leak", Case{Description: "Die Spülmaschine ist undicht"}, PriorityHigh},
		{"german plain fault", Case{Description: "Die Tür schließt nicht"}, PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Priority(tt.c))
		})
	}

	low := NewService(nil, nil, nil, Config{DefaultPriority: PriorityLow}, nil)
	assert.Equal(t, PriorityLow, low.Priority(Case{Description: "noisy fan"}))

	custom := NewService(nil, nil, nil, Config{SafetyTerm: func(w string) bool { return w == "noisy" }}, nil)
	assert.Equal(t, PriorityHigh, custom.Priority(Case{Description: "noisy fan"}))
	assert.Equal(t, PriorityMedium, custom.Priority(Case{Description: "smoke everywhere"}))
}

func TestEscalate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := testCase(t, s)
	assigner := &recordingAssigner{}
	svc := NewService(s, nil, assigner, Config{}, nil)

	a, err := svc.Escalate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "asg-1", a.ID)
	assert.Equal(t, PriorityMedium, a.Priority)
	assert.Equal(t, Summarize(c), a.Summary)

	require.Len(t, assigner.requests, 1)
	assert.Equal(t, a.IssueID, assigner.requests[0].IssueID)
	assert.True(t, strings.Contains(assigner.requests[0].Summary, "descale"))

	open, err := s.FindOpenIssues(ctx, "acme", c.Equipment.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, store.IssuePendingTechnician, open[0].Issue.Status)
	assert.Equal(t, "asg-1", open[0].Issue.AssignmentID)
	assert.Equal(t, "oven does not heat", open[0].Problem.Description)

	t.Run("already assigned issue is not sent again", func(t *testing.T) {
		c2 := c
		c2.IssueID = a.IssueID
		again, err := svc.Escalate(ctx, c2)
		require.NoError(t, err)
		assert.Equal(t, "asg-1", again.ID)
		assert.Len(t, assigner.requests, 1)
	})
}

func TestEscalate_EnhancedSummary(t *testing.T) {
	s := newStore(t)
	c := testCase(t, s)
	assigner := &recordingAssigner{}
	svc := NewService(s, enhancer{text: "Combi oven fails to heat, error E34."}, assigner, Config{}, nil)

	a, err := svc.Escalate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "Combi oven fails to heat, error E34.", a.Summary)
	assert.Equal(t, a.Summary, assigner.requests[0].Summary)
}

func TestEscalate_RetryReusesIssue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := testCase(t, s)
	assigner := &recordingAssigner{err: errors.New("no dispatcher")}
	svc := NewService(s, nil, assigner, Config{}, nil)

	first, err := svc.Escalate(ctx, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssignFailed)
	require.NotNil(t, first)
	require.NotEmpty(t, first.IssueID)
	assert.Empty(t, first.ID)

	assigner.err = nil
	c.IssueID = first.IssueID
	second, err := svc.Escalate(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, first.IssueID, second.IssueID)

	open, err := s.FindOpenIssues(ctx, "acme", c.Equipment.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1, "retry must not create a second issue")
}

func TestEscalate_Validation(t *testing.T) {
	svc := NewService(nil, nil, &recordingAssigner{}, Config{}, nil)
	_, err := svc.Escalate(context.Background(), Case{TenantID: "acme"})
	assert.True(t, errs.Is(err, errs.KindValidationFailed))
}

func TestLocalAssigner(t *testing.T) {
	a := NewLocalAssigner(nil)
	id, err := a.Assign(context.Background(), AssignRequest{TenantID: "acme", IssueID: "i1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "local-"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Assign(ctx, AssignRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
