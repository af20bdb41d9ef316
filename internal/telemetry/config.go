// Package telemetry sets up OpenTelemetry tracing and metrics for fixdesk.
//
// Components take a trace.Tracer and metric.Meter from a *Telemetry. When
// telemetry is disabled the global no-op providers are returned, so callers
// never branch on whether export is configured.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string // "grpc" or "http/protobuf"
	Insecure       bool
	TLSSkipVerify  bool
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	ExportInterval config.Duration
	ShutdownWait   config.Duration
}

// NewDefaultConfig returns telemetry defaults. Export is off until enabled.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       "grpc",
		Insecure:       true,
		ServiceName:    "fixdesk",
		ServiceVersion: "0.1.0",
		SamplingRate:   1.0,
		ExportInterval: config.Duration(15 * time.Second),
		ShutdownWait:   config.Duration(5 * time.Second),
	}
}

// FromObservability derives a telemetry config from the service configuration.
func FromObservability(obs config.ObservabilityConfig) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = obs.EnableTelemetry
	if obs.OTLPEndpoint != "" {
		cfg.Endpoint = obs.OTLPEndpoint
	}
	if obs.OTLPProtocol != "" {
		cfg.Protocol = obs.OTLPProtocol
	}
	cfg.Insecure = obs.OTLPInsecure
	if obs.ServiceName != "" {
		cfg.ServiceName = obs.ServiceName
	}
	if obs.ServiceVersion != "" {
		cfg.ServiceVersion = obs.ServiceVersion
	}
	cfg.SamplingRate = obs.SamplingRate
	return cfg
}

// Validate checks configuration for errors. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unknown otlp protocol %q", c.Protocol)
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false or use a local endpoint")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	if c.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("export interval must be positive")
	}
	return nil
}

func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.")
}
