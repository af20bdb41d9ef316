// Package feedback records what happened when a user tried a solution.
//
// A success is written atomically: closing an issue, borrowing another
// tenant's solution or persisting an AI-generated fix each commit every row
// they touch or none. A failure lowers the solution's effectiveness and is
// best effort.
package feedback

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

const instrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/feedback"

// AIEffectiveness is the starting score of a confirmed AI-generated solution.
const AIEffectiveness = 100

// Service records solution outcomes.
type Service interface {
	// RecordSuccess persists a confirmed fix and returns the rows written.
	RecordSuccess(ctx context.Context, o Outcome) (*store.ResolutionResult, error)

	// RecordFailure lowers the effectiveness of a persisted solution.
	// Errors are logged, never returned.
	RecordFailure(ctx context.Context, o Outcome)
}

// Config configures effectiveness adjustments.
type Config struct {
	// SuccessDelta is added on a confirmed fix (default: 10)
	SuccessDelta int

	// FailureDelta is subtracted on a failed attempt (default: 10)
	FailureDelta int
}

// ConfigFromConfig maps the feedback config section.
func ConfigFromConfig(cfg config.FeedbackConfig) Config {
	return Config{SuccessDelta: cfg.SuccessDelta, FailureDelta: cfg.FailureDelta}
}

// Outcome describes the attempt being reported.
type Outcome struct {
	// SessionID keys the resolution so a repeated report writes nothing new.
	SessionID     string
	TenantID      string
	UserID        string
	EquipmentID   string
	EquipmentType string
	// Description is the problem as the user confirmed it.
	Description string
	Candidate   diagnosis.Candidate
}

type service struct {
	cases   store.CaseStore
	adapter ai.Adapter
	cfg     Config
	logger  *zap.Logger

	tracer    trace.Tracer
	successes metric.Int64Counter
	failures  metric.Int64Counter
}

// NewService creates a feedback service. The adapter is used only to
// categorize new problems.
func NewService(cases store.CaseStore, adapter ai.Adapter, cfg Config, logger *zap.Logger) Service {
	if cfg.SuccessDelta < 0 {
		cfg.SuccessDelta = -cfg.SuccessDelta
	}
	if cfg.FailureDelta < 0 {
		cfg.FailureDelta = -cfg.FailureDelta
	}
	if adapter == nil {
		adapter = ai.Unavailable{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		cases:   cases,
		adapter: adapter,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
	}
	s.initMetrics()
	return s
}

func (s *service) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error
	s.successes, err = meter.Int64Counter(
		"fixdesk.feedback.successes_total",
		metric.WithDescription("Confirmed fixes by candidate origin"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		s.logger.Warn("failed to create success counter", zap.Error(err))
	}
	s.failures, err = meter.Int64Counter(
		"fixdesk.feedback.failures_total",
		metric.WithDescription("Failed attempts by candidate origin"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		s.logger.Warn("failed to create failure counter", zap.Error(err))
	}
}

// RecordSuccess implements Service.
func (s *service) RecordSuccess(ctx context.Context, o Outcome) (*store.ResolutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "feedback.record_success")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", o.TenantID),
		attribute.String("origin", string(o.Candidate.Origin)),
	)

	r, err := s.resolution(ctx, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid outcome")
		return nil, err
	}

	result, err := s.cases.RecordResolution(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("recording resolution failed",
			zap.String("tenant_id", o.TenantID),
			zap.String("origin", string(o.Candidate.Origin)),
			zap.Error(err))
		return nil, errs.Persistence("feedback.record_success", fmt.Errorf("record resolution: %w", err))
	}

	span.SetAttributes(
		attribute.String("issue_id", result.IssueID),
		attribute.String("solution_id", result.SolutionID),
		attribute.Int("effectiveness", result.Effectiveness),
	)
	if s.successes != nil {
		s.successes.Add(ctx, 1, metric.WithAttributes(attribute.String("origin", string(o.Candidate.Origin))))
	}
	s.logger.Info("resolution recorded",
		zap.String("tenant_id", o.TenantID),
		zap.String("issue_id", result.IssueID),
		zap.String("solution_id", result.SolutionID),
		zap.Int("effectiveness", result.Effectiveness))
	return result, nil
}

// resolution picks the store write for the candidate's origin.
func (s *service) resolution(ctx context.Context, o Outcome) (store.Resolution, error) {
	const op = "feedback.record_success"
	c := o.Candidate
	r := store.Resolution{
		TenantID:    o.TenantID,
		EquipmentID: o.EquipmentID,
		UserID:      o.UserID,
		SessionID:   o.SessionID,
	}
	if o.TenantID == "" || o.UserID == "" {
		return r, errs.Validation(op, "tenant and user are required")
	}

	switch c.Origin {
	case diagnosis.OriginIssue, diagnosis.OriginOpenIssue:
		if c.IssueID == "" || c.SolutionID == "" {
			return r, errs.Validation(op, "issue candidate needs issue and solution ids")
		}
		r.IssueID = c.IssueID
		r.SolutionID = c.SolutionID
		r.EffectivenessDelta = s.cfg.SuccessDelta

	case diagnosis.OriginProblem:
		if c.SolutionID == "" {
			return r, errs.Validation(op, "borrowed candidate needs a solution id")
		}
		if o.EquipmentID == "" {
			return r, errs.Validation(op, "equipment is required")
		}
		r.NewProblem = s.newProblem(ctx, o)
		r.SolutionID = c.SolutionID
		r.EffectivenessDelta = s.cfg.SuccessDelta

	case diagnosis.OriginAI:
		if strings.TrimSpace(c.Treatment) == "" {
			return r, errs.Validation(op, "AI candidate has no treatment")
		}
		if o.EquipmentID == "" {
			return r, errs.Validation(op, "equipment is required")
		}
		r.NewProblem = s.newProblem(ctx, o)
		r.NewSolution = &store.NewSolution{
			Treatment:     c.Treatment,
			Effectiveness: AIEffectiveness,
			Source:        tenant.AISource().String(),
		}

	default:
		return r, errs.Validation(op, fmt.Sprintf("unknown candidate origin %q", c.Origin))
	}
	return r, nil
}

func (s *service) newProblem(ctx context.Context, o Outcome) *store.NewProblem {
	desc := strings.TrimSpace(o.Description)
	if desc == "" {
		desc = o.Candidate.Treatment
	}
	cats, err := s.adapter.Categorize(ctx, desc, o.EquipmentType)
	if err != nil {
		s.logger.Debug("categorize unavailable, storing problem without categories", zap.Error(err))
		cats = nil
	}
	return &store.NewProblem{Description: desc, Categories: cats}
}

// RecordFailure implements Service.
func (s *service) RecordFailure(ctx context.Context, o Outcome) {
	ctx, span := s.tracer.Start(ctx, "feedback.record_failure")
	defer span.End()
	c := o.Candidate
	span.SetAttributes(attribute.String("origin", string(c.Origin)))

	if s.failures != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("origin", string(c.Origin))))
	}
	if !c.Origin.Persisted() || c.SolutionID == "" {
		return
	}

	score, err := s.cases.AdjustEffectiveness(ctx, c.SolutionID, -s.cfg.FailureDelta)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("lowering effectiveness failed",
			zap.String("solution_id", c.SolutionID), zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("effectiveness", score))
	s.logger.Debug("effectiveness lowered",
		zap.String("solution_id", c.SolutionID), zap.Int("effectiveness", score))
}
