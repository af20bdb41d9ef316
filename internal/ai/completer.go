package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
)

// Completer sends one prompt and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// modelCompleter drives any langchaingo model with a single user prompt.
type modelCompleter struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

func (c *modelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
}

const completionMaxTokens = 1024

// NewCompleter builds a Completer for cfg.Provider ("openai" or "anthropic").
// OpenAI-compatible servers are reached by setting BaseURL.
func NewCompleter(cfg config.AIConfig) (Completer, error) {
	var model llms.Model
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(tokenOrPlaceholder(cfg.APIKey)),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		model = llm
	case "anthropic":
		if !cfg.APIKey.IsSet() {
			return nil, fmt.Errorf("anthropic API key required")
		}
		opts := []anthropic.Option{
			anthropic.WithModel(cfg.Model),
			anthropic.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating anthropic client: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	return &modelCompleter{model: model, temperature: cfg.Temperature, maxTokens: completionMaxTokens}, nil
}

// local OpenAI-compatible servers accept any token; the client insists on one
func tokenOrPlaceholder(s config.Secret) string {
	if s.IsSet() {
		return s.Value()
	}
	return "placeholder"
}
