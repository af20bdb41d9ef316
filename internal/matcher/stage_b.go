package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

// Attribute match points for Stage B.
const (
	ModelMatchScore        = 3
	ManufacturerMatchScore = 2
	maxAttributeScore      = ModelMatchScore + ManufacturerMatchScore
)

// ScoredProblem is a Stage B candidate before ranking. It carries no tenant.
type ScoredProblem struct {
	ProblemID    string
	Description  string
	Manufacturer string
	Model        string
	Solution     store.Solution
	Score        int
	createdAt    int64
}

// AttributeScore scores candidate equipment against the session equipment.
func AttributeScore(session, candidate store.Equipment) int {
	score := 0
	if m := strings.TrimSpace(session.Model); m != "" && strings.EqualFold(m, strings.TrimSpace(candidate.Model)) {
		score += ModelMatchScore
	}
	if m := strings.TrimSpace(session.Manufacturer); m != "" && strings.EqualFold(m, strings.TrimSpace(candidate.Manufacturer)) {
		score += ManufacturerMatchScore
	}
	return score
}

// ScoreProblems keeps other tenants' problems that still have an untried
// solution, paired with the best such solution, and orders them by score,
// newest first on ties.
func ScoreProblems(tenantID string, eq store.Equipment, cands []store.ProblemCandidate, tried map[string]bool) []ScoredProblem {
	out := make([]ScoredProblem, 0, len(cands))
	for _, c := range cands {
		if c.Problem.TenantID == tenantID {
			continue
		}
		var best *store.Solution
		for i := range c.Solutions {
			if !tried["solution:"+c.Solutions[i].ID] {
				best = &c.Solutions[i]
				break
			}
		}
		if best == nil {
			continue
		}
		out = append(out, ScoredProblem{
			ProblemID:    c.Problem.ID,
			Description:  c.Problem.Description,
			Manufacturer: c.Equipment.Manufacturer,
			Model:        c.Equipment.Model,
			Solution:     *best,
			Score:        AttributeScore(eq, c.Equipment),
			createdAt:    c.Problem.CreatedAt.UnixNano(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].createdAt > out[j].createdAt
	})
	return out
}

// MatchProblems is Stage B: problems on the same equipment type solved by
// other tenants, attribute-scored, then ranked. Results name no tenant.
func (m *Matcher) MatchProblems(ctx context.Context, req Request) (diagnosis.ProblemMatches, error) {
	ctx, span := m.tracer.Start(ctx, "matcher.stage_b")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("equipment_type", req.Equipment.Type),
	)

	rows, err := m.cases.FindProblemsByEquipmentType(ctx, req.Equipment.Type, req.TenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return diagnosis.ProblemMatches{}, errs.Persistence("matcher.stage_b", fmt.Errorf("find problems: %w", err))
	}

	seenSolution := make(map[string]bool)
	scored := ScoreProblems(req.TenantID, req.Equipment, rows, req.tried())
	byID := make(map[string]ScoredProblem, len(scored))
	priors := make(map[string]float32, len(scored))
	cands := make([]ai.Candidate, 0, len(scored))
	for _, p := range scored {
		if seenSolution[p.Solution.ID] {
			continue
		}
		seenSolution[p.Solution.ID] = true
		byID[p.ProblemID] = p
		priors[p.ProblemID] = float32(p.Score) / maxAttributeScore
		cands = append(cands, ai.Candidate{ID: p.ProblemID, Text: p.Description + " | fix: " + p.Solution.Treatment})
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))

	var result diagnosis.ProblemMatches
	if len(cands) > 0 {
		for _, id := range m.rank(ctx, diagnosis.StageB, req.Description, cands, priors) {
			p, ok := byID[id]
			if !ok {
				continue
			}
			result.Matches = append(result.Matches, diagnosis.ProblemMatch{
				ProblemID:     p.ProblemID,
				SolutionID:    p.Solution.ID,
				Description:   p.Description,
				Treatment:     p.Solution.Treatment,
				Effectiveness: p.Solution.Effectiveness,
				Score:         p.Score,
				Manufacturer:  p.Manufacturer,
				Model:         p.Model,
				Badge:         tenant.BadgeOtherBusiness,
			})
			if len(result.Matches) == m.cfg.MaxResults {
				break
			}
		}
	}

	m.logger.Debug("stage b ranked",
		zap.Int("candidates", len(cands)), zap.Int("matches", len(result.Matches)))
	span.SetAttributes(attribute.Int("matches", len(result.Matches)))
	m.count(ctx, m.results, diagnosis.StageB, !result.Empty())
	return result, nil
}
