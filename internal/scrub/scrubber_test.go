package scrub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		s, err := New(nil)
		require.NoError(t, err)
		assert.True(t, s.IsEnabled())
	})

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"invalid pattern", &Config{Enabled: true, Rules: []Rule{{ID: "bad", Pattern: `[invalid`}}}},
		{"missing ID", &Config{Enabled: true, Rules: []Rule{{Pattern: `x`}}}},
		{"missing pattern", &Config{Enabled: true, Rules: []Rule{{ID: "x"}}}},
		{"invalid allow list", &Config{Enabled: true, AllowList: []string{`[`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestScrub(t *testing.T) {
	s := MustNew(nil)

	tests := []struct {
		name   string
		input  string
		want   string
		ruleID string
	}{
		{
			name:   "email",
			input:  "reach me at chef@bistro.example for parts",
			want:   "reach me at [EMAIL] for parts",
			ruleID: "email",
		},
		{
			name:   "phone",
			input:  "call +49 30 1234 5678 when the tech is coming",
			want:   "call [PHONE] when the tech is coming",
			ruleID: "phone",
		},
		{
			name:   "payment card",
			input:  "charged 4111 1111 1111 1111 for the last repair",
			want:   "charged [CARD] for the last repair",
			ruleID: "payment-card",
		},
		{
			name:   "iban",
			input:  "refund to DE89 3704 0044 0532 0130 00 please",
			want:   "refund to [ACCOUNT] please",
			ruleID: "iban",
		},
		{
			name:   "door code",
			input:  "back door code is 4471, oven is in the back",
			want:   "back door [CREDENTIAL] oven is in the back",
			ruleID: "password",
		},
		{
			name:   "bearer token",
			input:  "portal says Bearer abcdefghijklmnopqrstuvwxyz012345",
			want:   "portal says [CREDENTIAL]",
			ruleID: "bearer-token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Scrub(tt.input)
			assert.Equal(t, tt.want, res.Scrubbed)
			assert.True(t, res.HasFindings())
			assert.Positive(t, res.ByRule[tt.ruleID])
		})
	}

	t.Run("plain description untouched", func(t *testing.T) {
		in := "Rational iCombi Pro 6-1/1 shows error 34.1 and does not heat above 80 degrees"
		res := s.Scrub(in)
		assert.Equal(t, in, res.Scrubbed)
		assert.False(t, res.HasFindings())
	})

	t.Run("number failing luhn is kept", func(t *testing.T) {
		res := s.Scrub("serial 1234567890123456")
		assert.Zero(t, res.ByRule["payment-card"])
	})
}

func TestScrubAllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowList = []string{`@fixdesk\.example$`}
	s := MustNew(cfg)

	res := s.Scrub("write to help@fixdesk.example or me@bistro.example")
	assert.Equal(t, "write to help@fixdesk.example or [EMAIL]", res.Scrubbed)
}

func TestScrubDisabled(t *testing.T) {
	s := MustNew(&Config{Enabled: false})
	res := s.Scrub("chef@bistro.example")
	assert.Equal(t, "chef@bistro.example", res.Scrubbed)
	assert.False(t, s.IsEnabled())

	assert.Equal(t, "x@y.example", Noop{}.Scrub("x@y.example").Scrubbed)
}

func TestLuhn(t *testing.T) {
	assert.True(t, luhn("4111-1111-1111-1111"))
	assert.False(t, luhn("4111-1111-1111-1112"))
	assert.False(t, luhn("42"))
}
