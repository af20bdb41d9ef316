package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

func TestReplies(t *testing.T) {
	tests := []struct {
		text       string
		yes, no    bool
		technician bool
	}{
		{"Yes!", true, false, false},
		{"  it worked. ", true, false, false},
		{"Ja", true, false, false},
		{"No.", false, true, false},
		{"didn't work", false, true, false},
		{"send a technician please", false, false, true},
		{"Bitte einen Techniker", false, false, true},
		{"maybe", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.yes, isYes(tt.text))
			assert.Equal(t, tt.no, isNo(tt.text))
			assert.Equal(t, tt.technician, wantsTechnician(tt.text))
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want int
		ok   bool
	}{
		{"2", 3, 2, true},
		{"#1", 3, 1, true},
		{"3.", 3, 3, true},
		{"4", 3, 0, false},
		{"0", 3, 0, false},
		{"two", 3, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := parseChoice(tt.text, tt.n)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEquipmentForm(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		positional bool
		want       store.EquipmentFields
		ok         bool
	}{
		{"keyed", "type: oven; manufacturer: Rational; model: iCombi Pro", false,
			store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"}, true},
		{"german keys", "Gerät: Ofen\nHersteller: Rational", false,
			store.EquipmentFields{Type: "Ofen", Manufacturer: "Rational"}, true},
		{"keyed without type", "manufacturer: Rational", false, store.EquipmentFields{}, false},
		{"unknown key", "type: oven; colour: red", false, store.EquipmentFields{}, false},
		{"positional", "oven, Rational, iCombi Pro", true,
			store.EquipmentFields{Type: "oven", Manufacturer: "Rational", Model: "iCombi Pro"}, true},
		{"positional type only", "fryer", true, store.EquipmentFields{Type: "fryer"}, true},
		{"positional not allowed", "oven, Rational", false, store.EquipmentFields{}, false},
		{"too many parts", "a, b, c, d", true, store.EquipmentFields{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseEquipmentForm(tt.text, tt.positional)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	msg := Message{
		ID: "m1", Seq: 3, Sender: SenderSystem, Text: "Try this",
		Payload: SolutionList{Stage: diagnosis.StageB, Source: diagnosis.SourceOtherBusiness,
			Items: []diagnosis.Candidate{{Origin: diagnosis.OriginProblem, Treatment: "descale", SolutionID: "s1"}}},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"solution_list"`)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, msg, back)

	_, err = UnmarshalPayload([]byte(`{"type":"telepathy"}`))
	assert.ErrorIs(t, err, ErrUnknownPayload)
}
