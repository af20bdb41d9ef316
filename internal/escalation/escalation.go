// Package escalation hands a case the pipeline could not solve to a
// technician.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/catalog"
	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/reranker"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/escalation"

// ErrAssignFailed is wrapped when the assignment collaborator rejects or
// does not answer.
var ErrAssignFailed = errors.New("technician assignment failed")

// Priority of an escalated case.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// FollowUp is a question asked during the conversation and its answer.
type FollowUp struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Case is everything known about a problem being escalated.
type Case struct {
	TenantID  string
	UserID    string
	Equipment store.Equipment
	// Description is the user's original text.
	Description string
	// EnhancedDescription is included only when the user approved it.
	EnhancedDescription string
	FollowUps           []FollowUp
	Tried               []string
	// IssueID reuses the issue written by an earlier failed attempt.
	IssueID string
	// SessionID keys the escalation record to the conversation.
	SessionID string
}

// AssignRequest is sent to the assignment collaborator.
type AssignRequest struct {
	TenantID    string   `json:"tenant_id"`
	EquipmentID string   `json:"equipment_id"`
	IssueID     string   `json:"issue_id"`
	Summary     string   `json:"summary"`
	Priority    Priority `json:"priority"`
}

// Assigner hands a case to a technician and returns the assignment id.
type Assigner interface {
	Assign(ctx context.Context, req AssignRequest) (string, error)
}

// Assignment is the result of an escalation.
type Assignment struct {
	ID       string
	IssueID  string
	Priority Priority
	Summary  string
}

// Config configures escalation.
type Config struct {
	DefaultPriority Priority
	// SafetyTerm reports hazard words that raise a case to high priority.
	// Defaults to the embedded catalog's list.
	SafetyTerm func(word string) bool
}

// ConfigFromConfig maps the escalation config section.
func ConfigFromConfig(cfg config.EscalationConfig) Config {
	return Config{DefaultPriority: Priority(cfg.DefaultPriority)}
}

// Service escalates cases.
type Service struct {
	cases    store.CaseStore
	adapter  ai.Adapter
	assigner Assigner
	cfg      Config
	logger   *zap.Logger

	tracer      trace.Tracer
	escalations metric.Int64Counter
}

// NewService creates an escalation service.
func NewService(cases store.CaseStore, adapter ai.Adapter, assigner Assigner, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = PriorityMedium
	}
	if cfg.SafetyTerm == nil {
		cfg.SafetyTerm = catalog.Default().IsSafetyTerm
	}
	if adapter == nil {
		adapter = ai.Unavailable{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cases:    cases,
		adapter:  adapter,
		assigner: assigner,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	var err error
	s.escalations, err = otel.Meter(instrumentationName).Int64Counter(
		"fixdesk.escalation.escalations_total",
		metric.WithDescription("Escalation attempts by priority and result"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		logger.Warn("failed to create escalation counter", zap.Error(err))
	}
	return s
}

// Escalate records the case as a pending_technician issue and assigns it.
//
// When the assigner fails the returned Assignment still carries the IssueID
// so a retry can pass it back in Case.IssueID; the error wraps
// ErrAssignFailed. An issue that already has an assignment is returned as is.
func (s *Service) Escalate(ctx context.Context, c Case) (*Assignment, error) {
	ctx, span := s.tracer.Start(ctx, "escalation.escalate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", c.TenantID),
		attribute.String("equipment_id", c.Equipment.ID),
		attribute.Bool("retry", c.IssueID != ""),
	)

	if c.TenantID == "" || c.Equipment.ID == "" {
		return nil, errs.Validation("escalation.escalate", "tenant and equipment are required")
	}

	plain := Summarize(c)
	priority := s.Priority(c)
	summary := plain
	if enhanced, err := s.adapter.EnhanceDescription(ctx, plain, ai.EquipmentSummary{
		Type:         c.Equipment.Type,
		Manufacturer: c.Equipment.Manufacturer,
		Model:        c.Equipment.Model,
		Category:     c.Equipment.Category,
	}); err == nil && strings.TrimSpace(enhanced) != "" {
		summary = enhanced
	} else if err != nil {
		s.logger.Debug("summary enhancement unavailable, using plain summary", zap.Error(err))
	}
	span.SetAttributes(attribute.String("priority", string(priority)))

	description := c.Description
	if c.EnhancedDescription != "" {
		description = c.EnhancedDescription
	}
	issue, err := s.cases.RecordEscalation(ctx, store.Escalation{
		TenantID:    c.TenantID,
		EquipmentID: c.Equipment.ID,
		OpenedBy:    c.UserID,
		Description: description,
		IssueID:     c.IssueID,
		SessionID:   c.SessionID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(ctx, priority, "persistence_failed")
		return nil, errs.Persistence("escalation.escalate", fmt.Errorf("record escalation: %w", err))
	}

	a := &Assignment{ID: issue.AssignmentID, IssueID: issue.ID, Priority: priority, Summary: summary}
	if a.ID != "" {
		return a, nil
	}

	id, err := s.assigner.Assign(ctx, AssignRequest{
		TenantID:    c.TenantID,
		EquipmentID: c.Equipment.ID,
		IssueID:     issue.ID,
		Summary:     summary,
		Priority:    priority,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(ctx, priority, "assign_failed")
		s.logger.Warn("technician assignment failed",
			zap.String("tenant_id", c.TenantID),
			zap.String("issue_id", issue.ID),
			zap.Error(err))
		return a, errs.New(errs.KindInternal, "escalation.assign", "", fmt.Errorf("%w: %v", ErrAssignFailed, err))
	}

	if err := s.cases.SetAssignment(ctx, c.TenantID, issue.ID, id); err != nil {
		span.RecordError(err)
		s.count(ctx, priority, "persistence_failed")
		return a, errs.Persistence("escalation.escalate", fmt.Errorf("store assignment: %w", err))
	}

	a.ID = id
	s.count(ctx, priority, "assigned")
	s.logger.Info("case escalated",
		zap.String("tenant_id", c.TenantID),
		zap.String("issue_id", issue.ID),
		zap.String("assignment_id", id),
		zap.String("priority", string(priority)))
	return a, nil
}

func (s *Service) count(ctx context.Context, p Priority, result string) {
	if s.escalations == nil {
		return
	}
	s.escalations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("priority", string(p)),
		attribute.String("result", result),
	))
}

// Priority is high when anything the user wrote mentions a safety hazard,
// otherwise the configured default.
func (s *Service) Priority(c Case) Priority {
	texts := []string{c.Description, c.EnhancedDescription}
	for _, f := range c.FollowUps {
		texts = append(texts, f.Answer)
	}
	for _, t := range texts {
		for _, term := range reranker.Terms(t) {
			if s.cfg.SafetyTerm(term) {
				return PriorityHigh
			}
		}
	}
	return s.cfg.DefaultPriority
}

// Summarize renders the case as plain text for a technician.
func Summarize(c Case) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Equipment: %s\n", c.Equipment.Label())
	fmt.Fprintf(&b, "Problem: %s\n", strings.TrimSpace(c.Description))
	if c.EnhancedDescription != "" {
		fmt.Fprintf(&b, "Details: %s\n", strings.TrimSpace(c.EnhancedDescription))
	}
	if len(c.FollowUps) > 0 {
		b.WriteString("Answers:\n")
		for _, f := range c.FollowUps {
			fmt.Fprintf(&b, "- %s %s\n", f.Question, f.Answer)
		}
	}
	if len(c.Tried) > 0 {
		b.WriteString("Already tried:\n")
		for _, t := range c.Tried {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
