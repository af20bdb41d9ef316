package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
ai:
  provider: openai
  api_key: sk-file
  timeout: 2s
matcher:
  max_results: 3
escalation:
  assigner: nats
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-file", cfg.AI.APIKey.Value())
	assert.Equal(t, 2*time.Second, cfg.AI.Timeout.Duration())
	assert.Equal(t, 3, cfg.Matcher.MaxResults)
	assert.Equal(t, "nats", cfg.Escalation.Assigner)

	// untouched fields keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Feedback.SuccessDelta)
	assert.Equal(t, "fixdesk.assignments.request", cfg.NATS.AssignSubject)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("FIXDESK_SERVER_PORT", "7070")
	t.Setenv("FIXDESK_FEEDBACK_SUCCESS_DELTA", "15")
	t.Setenv("FIXDESK_AI_RETRY_BACKOFF", "1s")
	t.Setenv("FIXDESK_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Feedback.SuccessDelta)
	assert.Equal(t, time.Second, cfg.AI.RetryBackoff.Duration())
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open config file")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a directory")
	})

	t.Run("oversized file", func(t *testing.T) {
		path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize+10))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [port")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})

	t.Run("fails validation", func(t *testing.T) {
		path := writeConfig(t, "matcher:\n  max_results: 0\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
	})
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"FIXDESK_SERVER_PORT":             "server.port",
		"FIXDESK_AI_API_KEY":              "ai.api_key",
		"FIXDESK_MATCHER_MAX_RESULTS":     "matcher.max_results",
		"FIXDESK_NATS_URL":                "nats.url",
		"FIXDESK_OBSERVABILITY_LOG_LEVEL": "observability.log_level",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, envKey(in))
		})
	}
}
