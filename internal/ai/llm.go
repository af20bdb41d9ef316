package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/scrub"
)

const (
	maxCategories        = 3
	maxEquipmentTypeLen  = 64
	defaultAttemptWindow = 4 * time.Second
)

// LLMConfig tunes LLMAdapter.
type LLMConfig struct {
	// Timeout bounds one attempt.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first.
	MaxRetries   int
	RetryBackoff time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit           float64
	Burst               int
	MaxDescriptionChars int
}

// LLMConfigFromConfig maps the ai config section.
func LLMConfigFromConfig(cfg config.AIConfig) LLMConfig {
	return LLMConfig{
		Timeout:             cfg.Timeout.Duration(),
		MaxRetries:          cfg.MaxRetries,
		RetryBackoff:        cfg.RetryBackoff.Duration(),
		RateLimit:           cfg.RateLimit,
		Burst:               cfg.Burst,
		MaxDescriptionChars: cfg.MaxDescriptionChars,
	}
}

// LLMAdapter implements Adapter by prompting a Completer for JSON answers.
type LLMAdapter struct {
	completer  Completer
	cfg        LLMConfig
	limiter    *rate.Limiter
	scrubber   scrub.Scrubber
	categories func() []string
	logger     *zap.Logger
}

var _ Adapter = (*LLMAdapter)(nil)

// NewLLMAdapter creates an adapter. categories supplies the closed label
// vocabulary for Categorize. A nil scrubber sends prompts unchanged.
func NewLLMAdapter(c Completer, cfg LLMConfig, scrubber scrub.Scrubber, categories func() []string, logger *zap.Logger) *LLMAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAttemptWindow
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if scrubber == nil {
		scrubber = scrub.Noop{}
	}
	if categories == nil {
		categories = func() []string { return nil }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAdapter{
		completer:  c,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
		scrubber:   scrubber,
		categories: categories,
		logger:     logger,
	}
}

// RankSimilarItems implements Adapter. The model sees positions instead of
// record ids, since the scrubber rewrites digit runs inside ids. Unknown and
// repeated positions are dropped.
func (a *LLMAdapter) RankSimilarItems(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	var lines strings.Builder
	byPos := make(map[string]string, len(candidates))
	for i, c := range candidates {
		pos := strconv.Itoa(i + 1)
		byPos[pos] = c.ID
		fmt.Fprintf(&lines, "%s: %s\n", pos, oneLine(c.Text))
	}

	var answer struct {
		Similar []interface{} `json:"similar"`
	}
	if err := a.call(ctx, "rank_similar_items", fmt.Sprintf(rankPrompt, query, lines.String()), &answer); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(answer.Similar))
	for _, v := range answer.Similar {
		pos := strings.TrimSpace(fmt.Sprint(v))
		if id, ok := byPos[pos]; ok {
			ids = append(ids, id)
			delete(byPos, pos)
		}
	}
	return ids, nil
}

// GenerateDiagnosis implements Adapter. Confidence is clamped to [0,100].
func (a *LLMAdapter) GenerateDiagnosis(ctx context.Context, description string, eq EquipmentSummary) (*Diagnosis, error) {
	var d Diagnosis
	if err := a.call(ctx, "generate_diagnosis", fmt.Sprintf(diagnosisPrompt, eq, description), &d); err != nil {
		return nil, err
	}
	d.PossibleCauses = nonEmpty(d.PossibleCauses)
	d.SuggestedSolutions = nonEmpty(d.SuggestedSolutions)
	d.PartsNeeded = nonEmpty(d.PartsNeeded)
	d.EstimatedCost = strings.TrimSpace(d.EstimatedCost)
	switch {
	case d.Confidence < 0:
		d.Confidence = 0
	case d.Confidence > 100:
		d.Confidence = 100
	}
	return &d, nil
}

// ExtractEquipmentType implements Adapter.
func (a *LLMAdapter) ExtractEquipmentType(ctx context.Context, text string) (string, error) {
	var answer struct {
		EquipmentType string `json:"equipment_type"`
	}
	if err := a.call(ctx, "extract_equipment_type", fmt.Sprintf(extractPrompt, text), &answer); err != nil {
		return "", err
	}
	t := strings.ToLower(strings.Join(strings.Fields(answer.EquipmentType), " "))
	return truncateRunes(t, maxEquipmentTypeLen), nil
}

// EnhanceDescription implements Adapter. The result is capped at
// MaxDescriptionChars runes when that is set.
func (a *LLMAdapter) EnhanceDescription(ctx context.Context, text string, eq EquipmentSummary) (string, error) {
	limit := a.cfg.MaxDescriptionChars
	if limit <= 0 {
		limit = 600
	}
	var answer struct {
		Description string `json:"description"`
	}
	if err := a.call(ctx, "enhance_description", fmt.Sprintf(enhancePrompt, limit, eq, text), &answer); err != nil {
		return "", err
	}
	out := strings.TrimSpace(answer.Description)
	if out == "" {
		return "", fmt.Errorf("enhance_description: empty answer: %w", ErrUnavailable)
	}
	return truncateRunes(out, limit), nil
}

// Categorize implements Adapter. Labels outside the vocabulary are dropped;
// if nothing is left the answer is "other" when the vocabulary has it.
func (a *LLMAdapter) Categorize(ctx context.Context, description, equipmentType string) ([]string, error) {
	vocab := a.categories()
	if len(vocab) == 0 {
		return nil, fmt.Errorf("categorize: no category vocabulary: %w", ErrUnavailable)
	}
	var answer struct {
		Categories []string `json:"categories"`
	}
	prompt := fmt.Sprintf(categorizePrompt, equipmentType, description, strings.Join(vocab, ", "))
	if err := a.call(ctx, "categorize", prompt, &answer); err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(vocab))
	for _, v := range vocab {
		allowed[v] = true
	}
	var out []string
	for _, c := range answer.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if allowed[c] {
			out = append(out, c)
			delete(allowed, c)
		}
		if len(out) == maxCategories {
			break
		}
	}
	if len(out) == 0 {
		for _, v := range vocab {
			if v == "other" {
				return []string{"other"}, nil
			}
		}
		return nil, fmt.Errorf("categorize: no label from vocabulary: %w", ErrUnavailable)
	}
	return out, nil
}

// call sends a scrubbed prompt and decodes the JSON answer into out. Each
// attempt has its own timeout; a failed or unparseable attempt is retried
// after RetryBackoff, up to MaxRetries times.
func (a *LLMAdapter) call(ctx context.Context, op, prompt string, out interface{}) error {
	prompt = a.scrubber.Scrub(prompt).Scrubbed

	var lastErr error
	attempts := a.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.cfg.RetryBackoff):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, ctx.Err())
			}
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w: %v", op, ErrUnavailable, err)
		}

		lastErr = a.attempt(ctx, prompt, out)
		if lastErr == nil {
			return nil
		}
		a.logger.Debug("ai attempt failed",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(lastErr))
		if ctx.Err() != nil {
			break
		}
	}

	a.logger.Warn("ai call unavailable",
		zap.String("op", op), zap.Int("attempts", attempts), zap.Error(lastErr))
	return fmt.Errorf("%s after %d attempts: %w: %v", op, attempts, ErrUnavailable, lastErr)
}

func (a *LLMAdapter) attempt(ctx context.Context, prompt string, out interface{}) error {
	attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	text, err := a.completer.Complete(attemptCtx, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}

var errNoJSON = errors.New("no JSON object in answer")

// decodeJSON parses the first JSON object in text, ignoring code fences and
// any prose around it.
func decodeJSON(text string, out interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
