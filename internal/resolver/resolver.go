// Package resolver turns a free-text equipment mention into candidate
// equipment records of the tenant.
package resolver

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
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/reranker"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/resolver"

// Resolution is the outcome of Resolve.
type Resolution struct {
	Candidates []store.Equipment
	// ManualEntryRequired is set when nothing matched; the user must enter
	// the equipment by hand.
	ManualEntryRequired bool
}

// Resolver finds, loads and creates tenant equipment.
type Resolver struct {
	equipment store.EquipmentStore
	adapter   ai.Adapter
	logger    *zap.Logger

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// New creates a Resolver.
func New(equipment store.EquipmentStore, adapter ai.Adapter, logger *zap.Logger) *Resolver {
	if adapter == nil {
		adapter = ai.Unavailable{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		equipment: equipment,
		adapter:   adapter,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}

	var err error
	r.outcomes, err = otel.Meter(instrumentationName).Int64Counter(
		"fixdesk.resolver.resolutions_total",
		metric.WithDescription("Equipment resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		logger.Warn("failed to create resolution counter", zap.Error(err))
	}
	return r
}

// Resolve searches the tenant's equipment by the terms of text. If nothing
// matches, the AI adapter is asked for an equipment type and the search is
// repeated with it. Adapter failure never fails the call: the result is
// simply ManualEntryRequired. Store errors are returned.
func (r *Resolver) Resolve(ctx context.Context, tenantID, text string) (Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	found, err := r.equipment.FindEquipmentByAttributes(ctx, tenantID, searchTerms(text))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Resolution{}, errs.Persistence("resolver.resolve", fmt.Errorf("attribute search: %w", err))
	}
	if len(found) > 0 {
		return r.done(ctx, span, "attributes", Resolution{Candidates: found}), nil
	}

	phrase, err := r.adapter.ExtractEquipmentType(ctx, text)
	if err != nil {
		r.logger.Info("equipment type extraction unavailable, asking for manual entry",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return r.done(ctx, span, "adapter_unavailable", Resolution{ManualEntryRequired: true}), nil
	}
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return r.done(ctx, span, "no_match", Resolution{ManualEntryRequired: true}), nil
	}

	found, err = r.equipment.FindEquipmentByAttributes(ctx, tenantID, append([]string{phrase}, searchTerms(phrase)...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Resolution{}, errs.Persistence("resolver.resolve", fmt.Errorf("type search: %w", err))
	}
	if len(found) == 0 {
		return r.done(ctx, span, "no_match", Resolution{ManualEntryRequired: true}), nil
	}
	return r.done(ctx, span, "extracted_type", Resolution{Candidates: found}), nil
}

func (r *Resolver) done(ctx context.Context, span trace.Span, outcome string, res Resolution) Resolution {
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("candidates", len(res.Candidates)),
	)
	if r.outcomes != nil {
		r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return res
}

// Get loads one of the tenant's equipment records.
func (r *Resolver) Get(ctx context.Context, tenantID, id string) (*store.Equipment, error) {
	e, err := r.equipment.GetEquipment(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("resolver.get", err)
	}
	if err != nil {
		return nil, errs.Persistence("resolver.get", err)
	}
	return e, nil
}

// Create stores manually entered equipment.
func (r *Resolver) Create(ctx context.Context, tenantID string, fields store.EquipmentFields) (*store.Equipment, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.create")
	defer span.End()

	if strings.TrimSpace(fields.Type) == "" {
		return nil, errs.Validation("resolver.create", "equipment type is required")
	}
	e, err := r.equipment.CreateEquipment(ctx, tenantID, fields)
	if err != nil {
		span.RecordError(err)
		return nil, errs.Persistence("resolver.create", err)
	}
	r.logger.Info("equipment created",
		zap.String("tenant_id", tenantID), zap.String("equipment_id", e.ID), zap.String("type", e.Type))
	return e, nil
}

// searchTerms are the content words of text.
func searchTerms(text string) []string {
	return reranker.Terms(text)
}
