package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const issueDetailQuery = `
	SELECT i.id, i.tenant_id, i.problem_id, COALESCE(i.solution_id, ''), i.opened_by, i.closed_by,
	       i.status, i.assignment_id, i.created_at, i.updated_at,
	       p.id, p.tenant_id, p.equipment_id, p.description, p.categories, p.reported_by, p.created_at,
	       s.id, s.problem_id, s.treatment, s.effectiveness, s.source, s.created_at
	FROM issues i
	JOIN problems p ON p.id = i.problem_id
	LEFT JOIN solutions s ON s.id = COALESCE(i.solution_id, (
		SELECT s2.id FROM solutions s2 WHERE s2.problem_id = p.id
		ORDER BY s2.effectiveness DESC, s2.created_at DESC LIMIT 1))`

func scanIssueDetail(row rowScanner) (*IssueDetail, error) {
	var d IssueDetail
	var status, categories string
	var iCreated, iUpdated, pCreated int64
	var sID, sProblem, sTreatment, sSource sql.NullString
	var sEff, sCreated sql.NullInt64

	err := row.Scan(
		&d.Issue.ID, &d.Issue.TenantID, &d.Issue.ProblemID, &d.Issue.SolutionID, &d.Issue.OpenedBy,
		&d.Issue.ClosedBy, &status, &d.Issue.AssignmentID, &iCreated, &iUpdated,
		&d.Problem.ID, &d.Problem.TenantID, &d.Problem.EquipmentID, &d.Problem.Description,
		&categories, &d.Problem.ReportedBy, &pCreated,
		&sID, &sProblem, &sTreatment, &sEff, &sSource, &sCreated,
	)
	if err != nil {
		return nil, err
	}
	d.Issue.Status = IssueStatus(status)
	d.Issue.CreatedAt = fromUnix(iCreated)
	d.Issue.UpdatedAt = fromUnix(iUpdated)
	d.Problem.Categories = decodeStrings(categories)
	d.Problem.CreatedAt = fromUnix(pCreated)
	if sID.Valid {
		d.Solution = &Solution{
			ID:            sID.String,
			ProblemID:     sProblem.String,
			Treatment:     sTreatment.String,
			Effectiveness: int(sEff.Int64),
			Source:        sSource.String,
			CreatedAt:     fromUnix(sCreated.Int64),
		}
	}
	return &d, nil
}

func (s *SQLiteStore) queryIssues(ctx context.Context, where string, args ...interface{}) ([]IssueDetail, error) {
	rows, err := s.db.QueryContext(ctx, issueDetailQuery+" WHERE "+where+" ORDER BY i.created_at DESC, i.id", args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var out []IssueDetail
	for rows.Next() {
		d, err := scanIssueDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue row: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// FindIssues implements CaseStore.
func (s *SQLiteStore) FindIssues(ctx context.Context, tenantID, equipmentID string) ([]IssueDetail, error) {
	return s.queryIssues(ctx, "i.tenant_id = ? AND p.equipment_id = ?", tenantID, equipmentID)
}

// FindOpenIssues implements CaseStore.
func (s *SQLiteStore) FindOpenIssues(ctx context.Context, tenantID, equipmentID string) ([]IssueDetail, error) {
	return s.queryIssues(ctx,
		"i.tenant_id = ? AND p.equipment_id = ? AND i.status IN ('open', 'pending_technician')",
		tenantID, equipmentID)
}

// GetIssue implements CaseStore.
func (s *SQLiteStore) GetIssue(ctx context.Context, tenantID, issueID string) (*IssueDetail, error) {
	row := s.db.QueryRowContext(ctx, issueDetailQuery+" WHERE i.id = ? AND i.tenant_id = ?", issueID, tenantID)
	d, err := scanIssueDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", issueID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan issue row: %w", err)
	}
	return d, nil
}

// FindProblemsByEquipmentType implements CaseStore.
func (s *SQLiteStore) FindProblemsByEquipmentType(ctx context.Context, equipmentType, excludeTenantID string) ([]ProblemCandidate, error) {
	query := `
	SELECT p.id, p.tenant_id, p.equipment_id, p.description, p.categories, p.reported_by, p.created_at,
	       e.id, e.tenant_id, e.type, e.manufacturer, e.model, e.category, e.search_key, e.created_at, e.updated_at,
	       s.id, s.problem_id, s.treatment, s.effectiveness, s.source, s.created_at
	FROM problems p
	JOIN equipment e ON e.id = p.equipment_id
	JOIN solutions s ON s.problem_id = p.id
	WHERE lower(trim(e.type)) = lower(trim(?)) AND p.tenant_id <> ?
	ORDER BY p.created_at DESC, p.id, s.effectiveness DESC, s.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, equipmentType, excludeTenantID)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer rows.Close()

	var out []ProblemCandidate
	for rows.Next() {
		var c ProblemCandidate
		var sol Solution
		var categories string
		var pCreated, eCreated, eUpdated, sCreated int64
		err := rows.Scan(
			&c.Problem.ID, &c.Problem.TenantID, &c.Problem.EquipmentID, &c.Problem.Description,
			&categories, &c.Problem.ReportedBy, &pCreated,
			&c.Equipment.ID, &c.Equipment.TenantID, &c.Equipment.Type, &c.Equipment.Manufacturer,
			&c.Equipment.Model, &c.Equipment.Category, &c.Equipment.SearchKey, &eCreated, &eUpdated,
			&sol.ID, &sol.ProblemID, &sol.Treatment, &sol.Effectiveness, &sol.Source, &sCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan problem row: %w", err)
		}
		sol.CreatedAt = fromUnix(sCreated)

		// rows for one problem are adjacent
		if n := len(out); n > 0 && out[n-1].Problem.ID == c.Problem.ID {
			out[n-1].Solutions = append(out[n-1].Solutions, sol)
			continue
		}
		c.Problem.Categories = decodeStrings(categories)
		c.Problem.CreatedAt = fromUnix(pCreated)
		c.Equipment.CreatedAt = fromUnix(eCreated)
		c.Equipment.UpdatedAt = fromUnix(eUpdated)
		c.Solutions = []Solution{sol}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetSolution implements CaseStore.
func (s *SQLiteStore) GetSolution(ctx context.Context, solutionID string) (*Solution, error) {
	var sol Solution
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, problem_id, treatment, effectiveness, source, created_at FROM solutions WHERE id = ?`,
		solutionID).Scan(&sol.ID, &sol.ProblemID, &sol.Treatment, &sol.Effectiveness, &sol.Source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("solution %s: %w", solutionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan solution row: %w", err)
	}
	sol.CreatedAt = fromUnix(created)
	return &sol, nil
}

// CreateProblem implements CaseStore.
func (s *SQLiteStore) CreateProblem(ctx context.Context, p *Problem) error {
	return s.insertProblem(ctx, s.db, p)
}

// CreateSolution implements CaseStore.
func (s *SQLiteStore) CreateSolution(ctx context.Context, sol *Solution) error {
	return s.insertSolution(ctx, s.db, sol)
}

// CreateIssue implements CaseStore.
func (s *SQLiteStore) CreateIssue(ctx context.Context, i *Issue) error {
	return s.insertIssue(ctx, s.db, i)
}

func (s *SQLiteStore) insertProblem(ctx context.Context, db execer, p *Problem) error {
	if p.TenantID == "" || p.EquipmentID == "" || strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("problem needs tenant, equipment and description: %w", ErrInvalid)
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = s.stamp(p.CreatedAt)
	_, err := db.ExecContext(ctx, `INSERT INTO problems
		(id, tenant_id, equipment_id, description, categories, reported_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.EquipmentID, p.Description, encodeStrings(p.Categories), p.ReportedBy, toUnix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertSolution(ctx context.Context, db execer, sol *Solution) error {
	if sol.ProblemID == "" || strings.TrimSpace(sol.Treatment) == "" || sol.Source == "" {
		return fmt.Errorf("solution needs problem, treatment and source: %w", ErrInvalid)
	}
	if sol.ID == "" {
		sol.ID = newID()
	}
	sol.Effectiveness = ClampEffectiveness(sol.Effectiveness)
	sol.CreatedAt = s.stamp(sol.CreatedAt)
	_, err := db.ExecContext(ctx, `INSERT INTO solutions
		(id, problem_id, treatment, effectiveness, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sol.ID, sol.ProblemID, sol.Treatment, sol.Effectiveness, sol.Source, toUnix(sol.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insertIssue(ctx context.Context, db execer, i *Issue) error {
	if i.TenantID == "" || i.ProblemID == "" {
		return fmt.Errorf("issue needs tenant and problem: %w", ErrInvalid)
	}
	if i.ID == "" {
		i.ID = newID()
	}
	if i.Status == "" {
		i.Status = IssueOpen
	}
	i.CreatedAt = s.stamp(i.CreatedAt)
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = i.CreatedAt
	}
	_, err := db.ExecContext(ctx, `INSERT INTO issues
		(id, tenant_id, problem_id, solution_id, opened_by, closed_by, status, assignment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.TenantID, i.ProblemID, nullable(i.SolutionID), i.OpenedBy, i.ClosedBy, string(i.Status),
		i.AssignmentID, toUnix(i.CreatedAt), toUnix(i.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func closeIssue(ctx context.Context, db execer, tenantID, issueID, solutionID, closedBy string, now time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE issues
		SET status = 'closed', solution_id = ?, closed_by = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		nullable(solutionID), closedBy, toUnix(now), issueID, tenantID)
	if err != nil {
		return fmt.Errorf("close issue: %w", err)
	}
	return checkAffected(res, "issue "+issueID)
}

// AdjustEffectiveness implements CaseStore.
func (s *SQLiteStore) AdjustEffectiveness(ctx context.Context, solutionID string, delta int) (int, error) {
	var score int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		score, err = adjustEffectiveness(ctx, tx, solutionID, delta)
		return err
	})
	return score, err
}

func adjustEffectiveness(ctx context.Context, db execer, solutionID string, delta int) (int, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE solutions SET effectiveness = MAX(0, MIN(100, effectiveness + ?)) WHERE id = ?`,
		delta, solutionID)
	if err != nil {
		return 0, fmt.Errorf("update effectiveness: %w", err)
	}
	if err := checkAffected(res, "solution "+solutionID); err != nil {
		return 0, err
	}
	var score int
	if err := db.QueryRowContext(ctx, `SELECT effectiveness FROM solutions WHERE id = ?`, solutionID).Scan(&score); err != nil {
		return 0, fmt.Errorf("read effectiveness: %w", err)
	}
	return score, nil
}

// RecordResolution implements CaseStore. Either every row is written or none.
// A repeated call for the same session returns the first result unchanged.
func (s *SQLiteStore) RecordResolution(ctx context.Context, r Resolution) (*ResolutionResult, error) {
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("resolution: %v: %w", err, ErrInvalid)
	}

	var result ResolutionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := priorOutcome(ctx, tx, r.SessionID, outcomeResolution)
		if err != nil {
			return err
		}
		if prior != nil {
			result = ResolutionResult{ProblemID: prior.problemID, SolutionID: prior.solutionID, IssueID: prior.issueID}
			return tx.QueryRowContext(ctx, `SELECT effectiveness FROM solutions WHERE id = ?`, prior.solutionID).
				Scan(&result.Effectiveness)
		}

		if err := s.writeResolution(ctx, tx, r, &result); err != nil {
			return err
		}
		return s.recordOutcome(ctx, tx, r.SessionID, outcomeResolution, result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *SQLiteStore) writeResolution(ctx context.Context, tx *sql.Tx, r Resolution, result *ResolutionResult) error {
	*result = ResolutionResult{SolutionID: r.SolutionID, IssueID: r.IssueID}

	if r.NewProblem != nil {
		p := &Problem{
			TenantID:    r.TenantID,
			EquipmentID: r.EquipmentID,
			Description: r.NewProblem.Description,
			Categories:  r.NewProblem.Categories,
			ReportedBy:  r.UserID,
		}
		if err := s.insertProblem(ctx, tx, p); err != nil {
			return err
		}
		result.ProblemID = p.ID
	}

	if r.NewSolution != nil {
		sol := &Solution{
			ProblemID:     result.ProblemID,
			Treatment:     r.NewSolution.Treatment,
			Effectiveness: r.NewSolution.Effectiveness,
			Source:        r.NewSolution.Source,
		}
		if err := s.insertSolution(ctx, tx, sol); err != nil {
			return err
		}
		result.SolutionID = sol.ID
		result.Effectiveness = sol.Effectiveness
	} else {
		score, err := adjustEffectiveness(ctx, tx, r.SolutionID, r.EffectivenessDelta)
		if err != nil {
			return err
		}
		result.Effectiveness = score
	}

	now := s.now().UTC()
	if r.IssueID != "" {
		if err := closeIssue(ctx, tx, r.TenantID, r.IssueID, r.SolutionID, r.UserID, now); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT problem_id FROM issues WHERE id = ?`, r.IssueID).
			Scan(&result.ProblemID)
	}

	issue := &Issue{
		TenantID:   r.TenantID,
		ProblemID:  result.ProblemID,
		SolutionID: result.SolutionID,
		OpenedBy:   r.UserID,
		ClosedBy:   r.UserID,
		Status:     IssueClosed,
		CreatedAt:  now,
	}
	if err := s.insertIssue(ctx, tx, issue); err != nil {
		return err
	}
	result.IssueID = issue.ID
	return nil
}

// RecordEscalation implements CaseStore.
func (s *SQLiteStore) RecordEscalation(ctx context.Context, e Escalation) (*Issue, error) {
	if e.IssueID != "" {
		d, err := s.GetIssue(ctx, e.TenantID, e.IssueID)
		if err != nil {
			return nil, err
		}
		return &d.Issue, nil
	}
	if e.TenantID == "" || e.EquipmentID == "" {
		return nil, fmt.Errorf("escalation needs tenant and equipment: %w", ErrInvalid)
	}

	var issue Issue
	var priorIssueID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := priorOutcome(ctx, tx, e.SessionID, outcomeEscalation)
		if err != nil {
			return err
		}
		if prior != nil {
			priorIssueID = prior.issueID
			return nil
		}

		p := &Problem{
			TenantID:    e.TenantID,
			EquipmentID: e.EquipmentID,
			Description: e.Description,
			Categories:  e.Categories,
			ReportedBy:  e.OpenedBy,
		}
		if err := s.insertProblem(ctx, tx, p); err != nil {
			return err
		}
		issue = Issue{
			TenantID:  e.TenantID,
			ProblemID: p.ID,
			OpenedBy:  e.OpenedBy,
			Status:    IssuePendingTechnician,
		}
		if err := s.insertIssue(ctx, tx, &issue); err != nil {
			return err
		}
		return s.recordOutcome(ctx, tx, e.SessionID, outcomeEscalation,
			ResolutionResult{IssueID: issue.ID, ProblemID: p.ID})
	})
	if err != nil {
		return nil, err
	}
	if priorIssueID != "" {
		d, err := s.GetIssue(ctx, e.TenantID, priorIssueID)
		if err != nil {
			return nil, err
		}
		return &d.Issue, nil
	}
	return &issue, nil
}

const (
	outcomeResolution = "resolution"
	outcomeEscalation = "escalation"
)

type outcome struct {
	issueID    string
	problemID  string
	solutionID string
}

// priorOutcome returns what an earlier call for the session wrote, or nil.
func priorOutcome(ctx context.Context, db execer, sessionID, kind string) (*outcome, error) {
	if sessionID == "" {
		return nil, nil
	}
	var o outcome
	err := db.QueryRowContext(ctx, `SELECT issue_id, problem_id, solution_id FROM session_outcomes
		WHERE session_id = ? AND kind = ?`, sessionID, kind).Scan(&o.issueID, &o.problemID, &o.solutionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session outcome: %w", err)
	}
	return &o, nil
}

func (s *SQLiteStore) recordOutcome(ctx context.Context, db execer, sessionID, kind string, r ResolutionResult) error {
	if sessionID == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, `INSERT INTO session_outcomes
		(session_id, kind, issue_id, problem_id, solution_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, kind, r.IssueID, r.ProblemID, r.SolutionID, toUnix(s.now()))
	if err != nil {
		return fmt.Errorf("record session outcome: %w", err)
	}
	return nil
}

// SetAssignment implements CaseStore.
func (s *SQLiteStore) SetAssignment(ctx context.Context, tenantID, issueID, assignmentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issues SET assignment_id = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		assignmentID, toUnix(s.now()), issueID, tenantID)
	if err != nil {
		return fmt.Errorf("set assignment: %w", err)
	}
	return checkAffected(res, "issue "+issueID)
}
