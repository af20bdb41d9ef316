package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeWith(t *testing.T, enc zapcore.Encoder, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Unix(0, 0),
		Message: msg,
	}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder_EntryFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encodeWith(t, enc, "contact owner at owner@acme.test",
		zap.String("api_key", "sk-abc"),
		zap.String("phone", "+1 555 0100"),
		zap.String("note", "header was Bearer abc.def"),
		zap.String("step", "matching_issues"),
		zap.Int("attempt", 2),
	)

	assert.NotContains(t, out, "sk-abc")
	assert.NotContains(t, out, "555 0100")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "owner@acme.test")
	assert.Contains(t, out, `"step":"matching_issues"`)
	assert.Contains(t, out, `"attempt":2`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	child.AddString("authorization", "Basic Zm9vOmJhcg==")
	child.AddString("tenant", "acme")

	out := encodeWith(t, child, "with fields")
	assert.NotContains(t, out, "Zm9vOmJhcg")
	assert.Contains(t, out, `"tenant":"acme"`)
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encodeWith(t, enc, "plain", zap.String("api_key", "sk-abc"))
	assert.Contains(t, out, "sk-abc")
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"(unclosed"},
	})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-1234567890"))
	assert.Equal(t, "[REDACTED:13]", f.String)
}

func TestEncodeLevel_Trace(t *testing.T) {
	out := encodeWith(t, newEncoder("json"), "x")
	assert.Contains(t, out, `"level":"info"`)

	buf, err := newEncoder("json").EncodeEntry(zapcore.Entry{Level: TraceLevel, Message: "t"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"trace"`)
}
