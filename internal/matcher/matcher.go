// Package matcher runs the staged search for solutions.
//
// Stage A looks at the tenant's own issues for the equipment, Stage B at
// problems other tenants solved on the same type of equipment, and Stage C
// asks the AI backend for a diagnosis. Each stage is called separately; the
// conversation decides when to move on.
package matcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/reranker"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/matcher"

// Config tunes the matcher.
type Config struct {
	// MaxResults caps Stage A and Stage B results (default 5).
	MaxResults int
	// MinLexicalOverlap is the fallback reranker threshold.
	MinLexicalOverlap float64
}

// ConfigFromConfig maps the matcher config section.
func ConfigFromConfig(cfg config.MatcherConfig) Config {
	return Config{MaxResults: cfg.MaxResults, MinLexicalOverlap: cfg.MinLexicalOverlap}
}

// Request is the input of every stage.
type Request struct {
	TenantID    string
	Equipment   store.Equipment
	Description string
	// Tried holds candidate keys (diagnosis.Candidate.Key) to exclude.
	Tried []string
}

func (r Request) tried() map[string]bool {
	m := make(map[string]bool, len(r.Tried))
	for _, k := range r.Tried {
		m[k] = true
	}
	return m
}

func (r Request) summary() ai.EquipmentSummary {
	return ai.EquipmentSummary{
		Type:         r.Equipment.Type,
		Manufacturer: r.Equipment.Manufacturer,
		Model:        r.Equipment.Model,
		Category:     r.Equipment.Category,
	}
}

// Matcher runs the three stages.
type Matcher struct {
	cases    store.CaseStore
	adapter  ai.Adapter
	fallback reranker.Reranker
	cfg      Config
	logger   *zap.Logger

	tracer   trace.Tracer
	results  metric.Int64Counter
	degraded metric.Int64Counter
}

// New creates a Matcher. The lexical reranker takes over ranking whenever
// the adapter is unavailable.
func New(cases store.CaseStore, adapter ai.Adapter, cfg Config, logger *zap.Logger) *Matcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if adapter == nil {
		adapter = ai.Unavailable{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Matcher{
		cases:    cases,
		adapter:  adapter,
		fallback: reranker.NewLexical(cfg.MinLexicalOverlap),
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	m.initMetrics()
	return m
}

func (m *Matcher) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error
	m.results, err = meter.Int64Counter(
		"fixdesk.matcher.stage_results_total",
		metric.WithDescription("Stage runs by stage and whether anything matched"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.logger.Warn("failed to create stage result counter", zap.Error(err))
	}
	m.degraded, err = meter.Int64Counter(
		"fixdesk.matcher.degraded_total",
		metric.WithDescription("Stage runs that fell back because the AI adapter was unavailable"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.logger.Warn("failed to create degraded counter", zap.Error(err))
	}
}

// Run dispatches to the given stage.
func (m *Matcher) Run(ctx context.Context, stage diagnosis.Stage, req Request) (diagnosis.Result, error) {
	switch stage {
	case diagnosis.StageA:
		return m.MatchIssues(ctx, req)
	case diagnosis.StageB:
		return m.MatchProblems(ctx, req)
	case diagnosis.StageC:
		return m.Diagnose(ctx, req), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// rank orders candidate ids with the adapter, or the lexical reranker when
// the adapter fails. priors feed the reranker only.
func (m *Matcher) rank(ctx context.Context, stage diagnosis.Stage, query string, cands []ai.Candidate, priors map[string]float32) []string {
	ids, err := m.adapter.RankSimilarItems(ctx, query, cands)
	if err == nil {
		return ids
	}

	m.logger.Info("ranking unavailable, using lexical fallback",
		zap.String("stage", string(stage)), zap.Error(err))
	m.count(ctx, m.degraded, stage, true)

	docs := make([]reranker.Document, len(cands))
	for i, c := range cands {
		docs[i] = reranker.Document{ID: c.ID, Content: c.Text, Prior: priors[c.ID]}
	}
	scored, err := m.fallback.Rerank(ctx, query, docs, 0)
	if err != nil {
		m.logger.Warn("lexical rerank failed", zap.Error(err))
		return nil
	}
	out := make([]string, len(scored))
	for i, d := range scored {
		out[i] = d.ID
	}
	return out
}

func (m *Matcher) count(ctx context.Context, c metric.Int64Counter, stage diagnosis.Stage, found bool) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("found", found),
	))
}
