package matcher

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
)

// Generic answer used when the AI backend cannot diagnose.
const (
	FallbackCause    = "The fault could not be diagnosed automatically."
	FallbackSolution = "Switch the equipment off, check the power supply, connections and any error codes, " +
		"and look for visible damage. If the problem persists, request an inspection by a qualified technician."
)

// Diagnose is Stage C. It never fails: when the adapter is unavailable or
// answers with nothing usable the result is a single generic cause and
// solution with confidence 0.
func (m *Matcher) Diagnose(ctx context.Context, req Request) diagnosis.AIDiagnosis {
	ctx, span := m.tracer.Start(ctx, "matcher.stage_c")
	defer span.End()
	span.SetAttributes(attribute.String("equipment_type", req.Equipment.Type))

	d, err := m.adapter.GenerateDiagnosis(ctx, req.Description, req.summary())
	if err == nil && d == nil {
		err = ai.ErrUnavailable
	}
	if err != nil {
		m.logger.Info("diagnosis unavailable, using generic answer", zap.Error(err))
		m.count(ctx, m.degraded, diagnosis.StageC, true)
		return m.degradedDiagnosis(ctx, span)
	}

	// Causes and solutions are kept as the model returned them; pairing
	// happens when candidates are built.
	result := diagnosis.AIDiagnosis{
		PossibleCauses:      d.PossibleCauses,
		SuggestedSolutions:  d.SuggestedSolutions,
		EstimatedCost:       d.EstimatedCost,
		PartsNeeded:         d.PartsNeeded,
		DiagnosisConfidence: diagnosis.ClampConfidence(d.Confidence),
	}
	if !hasUntried(result, req.tried()) {
		result = diagnosis.AIDiagnosis{}
	}
	if result.Empty() {
		m.logger.Info("diagnosis had no usable solution, using generic answer")
		return m.degradedDiagnosis(ctx, span)
	}

	span.SetAttributes(
		attribute.Int("solutions", len(result.SuggestedSolutions)),
		attribute.Int("confidence", result.DiagnosisConfidence),
	)
	m.count(ctx, m.results, diagnosis.StageC, true)
	return result
}

func (m *Matcher) degradedDiagnosis(ctx context.Context, span trace.Span) diagnosis.AIDiagnosis {
	span.SetAttributes(attribute.Bool("degraded", true))
	m.count(ctx, m.results, diagnosis.StageC, false)
	return diagnosis.AIDiagnosis{
		PossibleCauses:      []string{FallbackCause},
		SuggestedSolutions:  []string{FallbackSolution},
		PartsNeeded:         []string{},
		DiagnosisConfidence: 0,
		Degraded:            true,
	}
}

func hasUntried(r diagnosis.AIDiagnosis, tried map[string]bool) bool {
	for _, c := range r.Candidates() {
		if !tried[c.Key()] {
			return true
		}
	}
	return false
}
