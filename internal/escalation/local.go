package escalation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalAssigner accepts every case and only logs it. For single-node setups
// where technicians watch the issue list directly.
type LocalAssigner struct {
	logger *zap.Logger
}

// NewLocalAssigner creates a LocalAssigner.
func NewLocalAssigner(logger *zap.Logger) *LocalAssigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalAssigner{logger: logger}
}

// Assign implements Assigner.
func (a *LocalAssigner) Assign(ctx context.Context, req AssignRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "local-" + uuid.NewString()
	a.logger.Info("technician assignment queued",
		zap.String("assignment_id", id),
		zap.String("tenant_id", req.TenantID),
		zap.String("issue_id", req.IssueID),
		zap.String("priority", string(req.Priority)))
	return id, nil
}
