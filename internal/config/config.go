// Package config provides configuration loading for fixdesk.
//
// Values come from three layers, lowest precedence first: Default(), an
// optional YAML file, and FIXDESK_* environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete fixdesk configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	AI            AIConfig            `koanf:"ai"`
	Matcher       MatcherConfig       `koanf:"matcher"`
	Feedback      FeedbackConfig      `koanf:"feedback"`
	Escalation    EscalationConfig    `koanf:"escalation"`
	NATS          NATSConfig          `koanf:"nats"`
	Catalog       CatalogConfig       `koanf:"catalog"`
	Session       SessionConfig       `koanf:"session"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds SQLite configuration.
type StoreConfig struct {
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// AIConfig configures the AI ranking adapter and its LLM backend.
type AIConfig struct {
	// Provider is one of "openai", "anthropic" or "none".
	Provider    string  `koanf:"provider"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`

	// Timeout bounds a single attempt; MaxRetries is the number of extra attempts.
	Timeout      Duration `koanf:"timeout"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`

	RateLimit           float64 `koanf:"rate_limit"` // requests per second
	Burst               int     `koanf:"burst"`
	MaxDescriptionChars int     `koanf:"max_description_chars"`
	Scrub               bool    `koanf:"scrub"`
}

// MatcherConfig configures the staged similarity search.
type MatcherConfig struct {
	MaxResults int `koanf:"max_results"`
	// MinLexicalOverlap is the term-overlap threshold used when the AI ranker is unavailable.
	MinLexicalOverlap float64 `koanf:"min_lexical_overlap"`
}

// FeedbackConfig configures effectiveness adjustments.
type FeedbackConfig struct {
	SuccessDelta int `koanf:"success_delta"`
	FailureDelta int `koanf:"failure_delta"`
}

// EscalationConfig configures technician escalation.
type EscalationConfig struct {
	// Assigner is "nats" or "local".
	Assigner        string   `koanf:"assigner"`
	DefaultPriority string   `koanf:"default_priority"`
	RequestTimeout  Duration `koanf:"request_timeout"`
}

// NATSConfig holds the NATS connection used by the escalation assigner.
type NATSConfig struct {
	URL           string   `koanf:"url"`
	AssignSubject string   `koanf:"assign_subject"`
	EventPrefix   string   `koanf:"event_prefix"`
	ReconnectWait Duration `koanf:"reconnect_wait"`
	MaxReconnects int      `koanf:"max_reconnects"`
}

// CatalogConfig points at an optional external follow-up catalog.
type CatalogConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// SessionConfig configures the session handler.
type SessionConfig struct {
	// LockTimeout bounds how long a message waits behind an in-flight one.
	LockTimeout     Duration `koanf:"lock_timeout"`
	DefaultLanguage string   `koanf:"default_language"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	ServiceName     string  `koanf:"service_name"`
	ServiceVersion  string  `koanf:"service_version"`
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Path:        "data/fixdesk.db",
			BusyTimeout: Duration(5 * time.Second),
		},
		AI: AIConfig{
			Provider:            "none",
			Model:               "gpt-4o-mini",
			Temperature:         0.2,
			Timeout:             Duration(4 * time.Second),
			MaxRetries:          1,
			RetryBackoff:        Duration(250 * time.Millisecond),
			RateLimit:           5,
			Burst:               10,
			MaxDescriptionChars: 600,
			Scrub:               true,
		},
		Matcher: MatcherConfig{
			MaxResults:        5,
			MinLexicalOverlap: 0.2,
		},
		Feedback: FeedbackConfig{
			SuccessDelta: 10,
			FailureDelta: 10,
		},
		Escalation: EscalationConfig{
			Assigner:        "local",
			DefaultPriority: "medium",
			RequestTimeout:  Duration(5 * time.Second),
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			AssignSubject: "fixdesk.assignments.request",
			EventPrefix:   "fixdesk.escalations",
			ReconnectWait: Duration(time.Second),
			MaxReconnects: 5,
		},
		Session: SessionConfig{
			LockTimeout:     Duration(30 * time.Second),
			DefaultLanguage: "en",
		},
		Observability: ObservabilityConfig{
			ServiceName:    "fixdesk",
			ServiceVersion: "0.1.0",
			OTLPEndpoint:   "localhost:4317",
			OTLPProtocol:   "grpc",
			OTLPInsecure:   true,
			SamplingRate:   1.0,
			LogLevel:       "info",
			LogFormat:      "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Store.Path == "" {
		return errors.New("store path is required")
	}

	switch c.AI.Provider {
	case "none":
	case "openai", "anthropic":
		if !c.AI.APIKey.IsSet() && c.AI.BaseURL == "" {
			return fmt.Errorf("ai provider %q requires api_key or base_url", c.AI.Provider)
		}
	default:
		return fmt.Errorf("unknown ai provider %q (want openai, anthropic or none)", c.AI.Provider)
	}
	if c.AI.Timeout.Duration() <= 0 {
		return errors.New("ai timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai max_retries must be >= 0, got %d", c.AI.MaxRetries)
	}
	if c.AI.RateLimit <= 0 || c.AI.Burst < 1 {
		return errors.New("ai rate_limit must be positive and burst at least 1")
	}
	if c.AI.MaxDescriptionChars < 1 {
		return errors.New("ai max_description_chars must be positive")
	}

	if c.Matcher.MaxResults < 1 {
		return fmt.Errorf("matcher max_results must be >= 1, got %d", c.Matcher.MaxResults)
	}
	if c.Matcher.MinLexicalOverlap < 0 || c.Matcher.MinLexicalOverlap > 1 {
		return fmt.Errorf("matcher min_lexical_overlap must be between 0 and 1, got %f", c.Matcher.MinLexicalOverlap)
	}
	if c.Feedback.SuccessDelta < 0 || c.Feedback.FailureDelta < 0 {
		return errors.New("feedback deltas must be >= 0")
	}

	switch c.Escalation.Assigner {
	case "local":
	case "nats":
		if c.NATS.URL == "" || c.NATS.AssignSubject == "" {
			return errors.New("nats assigner requires nats.url and nats.assign_subject")
		}
	default:
		return fmt.Errorf("unknown escalation assigner %q (want nats or local)", c.Escalation.Assigner)
	}
	switch c.Escalation.DefaultPriority {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid default priority %q", c.Escalation.DefaultPriority)
	}

	if c.Session.LockTimeout.Duration() <= 0 {
		return errors.New("session lock_timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.Observability.SamplingRate)
	}
	return nil
}
