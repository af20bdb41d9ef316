package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"local insecure ok", func(c *Config) { c.Enabled = true }, false},
		{"ipv6 loopback ok", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"remote insecure rejected", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
		}, true},
		{"remote tls ok", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com:4318"
			c.Protocol = "http/protobuf"
			c.Insecure = false
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad sampling", func(c *Config) { c.Enabled = true; c.SamplingRate = 1.5 }, true},
		{"no service name", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromObservability(t *testing.T) {
	obs := config.Default().Observability
	obs.EnableTelemetry = true
	obs.OTLPProtocol = "http/protobuf"
	obs.OTLPEndpoint = "http://localhost:4318"
	obs.SamplingRate = 0.5

	cfg := FromObservability(obs)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, 0.5, cfg.SamplingRate)
	assert.Equal(t, "fixdesk", cfg.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}

func TestTestTelemetry_RecordsSpansAndCounters(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("fixdesk/test").Start(ctx, "matcher.stage_a")
	span.SetAttributes(attribute.Int64("candidates", 3))
	span.End()

	counter, err := tt.Meter("fixdesk/test").Int64Counter("fixdesk.test.total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("stage", "a")))
	counter.Add(ctx, 5, metric.WithAttributes(attribute.String("stage", "b")))

	tt.AssertSpanExists(t, "matcher.stage_a")
	tt.AssertSpanAttribute(t, "matcher.stage_a", "candidates", int64(3))
	assert.Equal(t, int64(7), tt.CounterValue(t, "fixdesk.test.total"))
	assert.Equal(t, int64(2), tt.CounterValue(t, "fixdesk.test.total", attribute.String("stage", "a")))
}
