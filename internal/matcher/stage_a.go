package matcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// MatchIssues is Stage A: the tenant's own issues on this equipment that
// carry a solution and that the ranker calls similar, in ranker order.
func (m *Matcher) MatchIssues(ctx context.Context, req Request) (diagnosis.IssueMatches, error) {
	ctx, span := m.tracer.Start(ctx, "matcher.stage_a")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("equipment_id", req.Equipment.ID),
	)

	issues, err := m.cases.FindIssues(ctx, req.TenantID, req.Equipment.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return diagnosis.IssueMatches{}, errs.Persistence("matcher.stage_a", fmt.Errorf("find issues: %w", err))
	}

	tried := req.tried()
	byID := make(map[string]diagnosis.IssueMatch, len(issues))
	seenSolution := make(map[string]bool)
	var cands []ai.Candidate
	for _, d := range issues {
		if err := tenant.CheckAccess(req.TenantID, d.Issue.TenantID); err != nil {
			m.logger.Error("store returned a foreign issue, dropping it",
				zap.String("issue_id", d.Issue.ID), zap.String("tenant_id", req.TenantID))
			continue
		}
		if d.Solution == nil || tried["solution:"+d.Solution.ID] || seenSolution[d.Solution.ID] {
			continue
		}
		seenSolution[d.Solution.ID] = true
		byID[d.Issue.ID] = diagnosis.IssueMatch{
			IssueID:       d.Issue.ID,
			ProblemID:     d.Problem.ID,
			SolutionID:    d.Solution.ID,
			Description:   d.Problem.Description,
			Treatment:     d.Solution.Treatment,
			Effectiveness: d.Solution.Effectiveness,
			Status:        string(d.Issue.Status),
		}
		cands = append(cands, ai.Candidate{ID: d.Issue.ID, Text: d.Problem.Description + " | fix: " + d.Solution.Treatment})
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))

	var result diagnosis.IssueMatches
	if len(cands) > 0 {
		for _, id := range m.rank(ctx, diagnosis.StageA, req.Description, cands, nil) {
			match, ok := byID[id]
			if !ok {
				continue
			}
			result.Matches = append(result.Matches, match)
			if len(result.Matches) == m.cfg.MaxResults {
				break
			}
		}
	}

	span.SetAttributes(attribute.Int("matches", len(result.Matches)))
	m.count(ctx, m.results, diagnosis.StageA, !result.Empty())
	return result, nil
}
