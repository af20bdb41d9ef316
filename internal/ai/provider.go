package ai

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/scrub"
)

// New builds the Adapter for cfg. Provider "none" (or empty) yields
// Unavailable so every component runs on its degraded path.
func New(cfg config.AIConfig, categories func() []string, logger *zap.Logger) (Adapter, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return Unavailable{}, nil
	}
	completer, err := NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	var scrubber scrub.Scrubber = scrub.Noop{}
	if cfg.Scrub {
		scrubber, err = scrub.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating scrubber: %w", err)
		}
	}
	return NewLLMAdapter(completer, LLMConfigFromConfig(cfg), scrubber, categories, logger), nil
}
