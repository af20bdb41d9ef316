package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fixdesk/internal/scrub"
)

// scripted returns answers in order and records every prompt.
type scripted struct {
	mu      sync.Mutex
	answers []func(ctx context.Context) (string, error)
	prompts []string
}

func (s *scripted) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		s.mu.Unlock()
		return "", errors.New("no scripted answer")
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	s.mu.Unlock()
	return next(ctx)
}

func text(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

// hang blocks until the attempt deadline.
func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func testConfig() LLMConfig {
	return LLMConfig{Timeout: 200 * time.Millisecond, MaxRetries: 1, RetryBackoff: 10 * time.Millisecond, MaxDescriptionChars: 40}
}

func vocab() []string {
	return []string{"heating", "electrical", "noise", "other"}
}

func newAdapter(c Completer) *LLMAdapter {
	return NewLLMAdapter(c, testConfig(), scrub.MustNew(nil), vocab, nil)
}

func TestRankSimilarItems(t *testing.T) {
	c := &scripted{answers: []func(context.Context) (string, error){
		text("```json\n{\"similar\": [2, \"zzz\", \"1\", 2, 9]}\n```"),
	}}
	a := newAdapter(c)

	ids, err := a.RankSimilarItems(context.Background(), "oven cold", []Candidate{
		{ID: "a", Text: "oven not heating"},
		{ID: "b", Text: "oven heating element\nbroken"},
		{ID: "c", Text: "door squeaks"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Contains(t, c.prompts[0], "2: oven heating element broken")
}

func TestRankSimilarItemsDigitHeavyIDs(t *testing.T) {
	ids := []string{
		"12345678-1234-4567-8901-123456789012",
		"98765432-9876-4321-1098-765432109876",
	}
	c := &scripted{answers: []func(context.Context) (string, error){
		text(`{"similar": ["2", "1"]}`),
	}}

	got, err := newAdapter(c).RankSimilarItems(context.Background(), "oven cold", []Candidate{
		{ID: ids[0], Text: "oven not heating"},
		{ID: ids[1], Text: "oven heats slowly"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[0]}, got)
	assert.NotContains(t, c.prompts[0], ids[0])
	assert.NotContains(t, c.prompts[0], "[PHONE]")
}

func TestRankSimilarItemsNoCandidates(t *testing.T) {
	c := &scripted{}
	ids, err := newAdapter(c).RankSimilarItems(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, c.prompts)
}

func TestGenerateDiagnosis(t *testing.T) {
	c := &scripted{answers: []func(context.Context) (string, error){
		text(`Here you go: {"possible_causes": ["thermostat", " "], "suggested_solutions": ["replace thermostat"],
		"estimated_cost": " 120 EUR ", "parts_needed": ["thermostat"], "diagnosis_confidence": 140}`),
	}}
	d, err := newAdapter(c).GenerateDiagnosis(context.Background(), "no heat", EquipmentSummary{Type: "oven", Manufacturer: "Rational"})
	require.NoError(t, err)
	assert.Equal(t, []string{"thermostat"}, d.PossibleCauses)
	assert.Equal(t, "120 EUR", d.EstimatedCost)
	assert.Equal(t, 100, d.Confidence)
	assert.Contains(t, c.prompts[0], "Equipment: oven, Rational")
}

func TestRetryThenSuccess(t *testing.T) {
	c := &scripted{answers: []func(context.Context) (string, error){
		hang,
		text(`{"equipment_type": "  Combi   Oven "}`),
	}}
	got, err := newAdapter(c).ExtractEquipmentType(context.Background(), "the combi oven is broken")
	require.NoError(t, err)
	assert.Equal(t, "combi oven", got)
	assert.Len(t, c.prompts, 2)
}

func TestExhaustionIsUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		answers []func(context.Context) (string, error)
	}{
		{"timeouts", []func(context.Context) (string, error){hang, hang}},
		{"errors", []func(context.Context) (string, error){fail(errors.New("502")), fail(errors.New("502"))}},
		{"garbage", []func(context.Context) (string, error){text("I cannot help"), text("{not json}")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scripted{answers: tt.answers}
			start := time.Now()
			_, err := newAdapter(c).ExtractEquipmentType(context.Background(), "x")
			require.ErrorIs(t, err, ErrUnavailable)
			assert.Len(t, c.prompts, 2, "one retry")
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestCallerCancellationStopsRetries(t *testing.T) {
	c := &scripted{answers: []func(context.Context) (string, error){hang, hang}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newAdapter(c).ExtractEquipmentType(ctx, "x")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, c.prompts, 1)
}

func TestEnhanceDescription(t *testing.T) {
	t.Run("capped", func(t *testing.T) {
		c := &scripted{answers: []func(context.Context) (string, error){
			text(`{"description": "` + strings.Repeat("ü", 100) + `"}`),
		}}
		got, err := newAdapter(c).EnhanceDescription(context.Background(), "hot", EquipmentSummary{Type: "oven"})
		require.NoError(t, err)
		assert.Equal(t, 40, len([]rune(got)))
	})

	t.Run("empty answer", func(t *testing.T) {
		c := &scripted{answers: []func(context.Context) (string, error){text(`{"description": "  "}`)}}
		_, err := newAdapter(c).EnhanceDescription(context.Background(), "hot", EquipmentSummary{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   []string
	}{
		{"filters vocabulary", `{"categories": ["Heating", "plumbing", "heating", "noise", "electrical"]}`, []string{"heating", "noise", "electrical"}},
		{"falls back to other", `{"categories": ["plumbing"]}`, []string{"other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scripted{answers: []func(context.Context) (string, error){text(tt.answer)}}
			got, err := newAdapter(c).Categorize(context.Background(), "no heat", "oven")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, c.prompts[0], "heating, electrical, noise, other")
		})
	}
}

func TestPromptsAreScrubbed(t *testing.T) {
	c := &scripted{answers: []func(context.Context) (string, error){text(`{"equipment_type": "oven"}`)}}
	_, err := newAdapter(c).ExtractEquipmentType(context.Background(), "oven broken, call me at chef@bistro.example")
	require.NoError(t, err)
	assert.NotContains(t, c.prompts[0], "chef@bistro.example")
	assert.Contains(t, c.prompts[0], "[EMAIL]")
}

func TestUnavailable(t *testing.T) {
	var a Adapter = Unavailable{}
	ctx := context.Background()

	_, err := a.RankSimilarItems(ctx, "q", []Candidate{{ID: "a"}})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = a.GenerateDiagnosis(ctx, "d", EquipmentSummary{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = a.ExtractEquipmentType(ctx, "t")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = a.EnhanceDescription(ctx, "t", EquipmentSummary{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = a.Categorize(ctx, "d", "oven")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEquipmentSummaryString(t *testing.T) {
	assert.Equal(t, "oven", EquipmentSummary{Type: "oven"}.String())
	assert.Equal(t, "oven, Rational iCombi", EquipmentSummary{Type: "oven", Manufacturer: "Rational", Model: "iCombi"}.String())
	assert.Equal(t, "Rational", EquipmentSummary{Manufacturer: "Rational"}.String())
}
