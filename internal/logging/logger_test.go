package logging

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, cfg, logger.config)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tests := []struct {
		name    string
		logFunc func()
		level   zapcore.Level
		message string
	}{
		{"trace", func() { tl.Trace(ctx, "trace message") }, TraceLevel, "trace message"},
		{"debug", func() { tl.Debug(ctx, "debug message") }, zapcore.DebugLevel, "debug message"},
		{"info", func() { tl.Info(ctx, "info message") }, zapcore.InfoLevel, "info message"},
		{"warn", func() { tl.Warn(ctx, "warn message") }, zapcore.WarnLevel, "warn message"},
		{"error", func() { tl.Error(ctx, "error message") }, zapcore.ErrorLevel, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			tt.logFunc()

			logs := tl.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.message, logs[0].Message)
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithTenant(context.Background(), "acme-bakery")
	ctx = WithSessionID(ctx, "3f7c9a52-0d0e-4c1b-9d55-6f8f3f0b8e21")
	ctx = WithRequestID(ctx, "req-42")

	tl.Info(ctx, "step entered", zap.String("step", "matching_issues"))

	tl.AssertField(t, "step entered", "tenant.id", "acme-bakery")
	tl.AssertField(t, "step entered", "session.id", "3f7c9a52-0d0e-4c1b-9d55-6f8f3f0b8e21")
	tl.AssertField(t, "step entered", "request.id", "req-42")
	tl.AssertField(t, "step entered", "step", "matching_issues")
}

func TestContextFields_Trace(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields[0].String)
}

func TestWithTenant_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"spaces", "acme bakery"},
		{"newline", "acme\nINFO forged"},
		{"too long", string(make([]byte, 200))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithTenant(context.Background(), tt.id)
			assert.Empty(t, TenantFromContext(ctx))
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromObservability(t *testing.T) {
	obs := config.Default().Observability
	obs.LogLevel = "debug"
	obs.LogFormat = "console"
	obs.ServiceName = "fixdesk-test"

	cfg, err := FromObservability(obs)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "fixdesk-test", cfg.Fields["service"])
	assert.False(t, cfg.Sampling.Enabled)

	obs.LogFormat = "xml"
	_, err = FromObservability(obs)
	assert.Error(t, err)
}
