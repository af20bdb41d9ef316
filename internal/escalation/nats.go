package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
)

// Default subjects.
const (
	DefaultAssignSubject = "fixdesk.assignments.request"
	DefaultEventPrefix   = "fixdesk.escalations"
)

// AssignReply is the dispatcher's answer on the assignment subject.
type AssignReply struct {
	AssignmentID string `json:"assignment_id"`
	Error        string `json:"error,omitempty"`
}

// Event is published on <prefix>.<tenant> after a successful assignment.
type Event struct {
	TenantID     string    `json:"tenant_id"`
	EquipmentID  string    `json:"equipment_id"`
	IssueID      string    `json:"issue_id"`
	AssignmentID string    `json:"assignment_id"`
	Priority     Priority  `json:"priority"`
	Time         time.Time `json:"time"`
}

// NATSAssigner asks a dispatcher over NATS request/reply.
//
// Request subject:
//
//	fixdesk.assignments.request
//
// Event subject:
//
//	fixdesk.escalations.{tenant_id}
type NATSAssigner struct {
	nc      *nats.Conn
	subject string
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewNATSAssigner creates a NATSAssigner on an existing connection.
func NewNATSAssigner(nc *nats.Conn, subject, eventPrefix string, timeout time.Duration, logger *zap.Logger) *NATSAssigner {
	if subject == "" {
		subject = DefaultAssignSubject
	}
	if eventPrefix == "" {
		eventPrefix = DefaultEventPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSAssigner{nc: nc, subject: subject, prefix: eventPrefix, timeout: timeout, logger: logger}
}

// Connect dials NATS with reconnect handling.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("fixdesk"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait.Duration()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// Assign implements Assigner.
func (a *NATSAssigner) Assign(ctx context.Context, req AssignRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal assign request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	msg, err := a.nc.RequestWithContext(ctx, a.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return "", fmt.Errorf("no dispatcher listening on %s: %w", a.subject, err)
		}
		return "", fmt.Errorf("assign request: %w", err)
	}

	var reply AssignReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decode assign reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("dispatcher: %s", reply.Error)
	}
	if reply.AssignmentID == "" {
		return "", errors.New("dispatcher returned no assignment id")
	}

	a.publish(req, reply.AssignmentID)
	return reply.AssignmentID, nil
}

// publish is best effort; the assignment already exists.
func (a *NATSAssigner) publish(req AssignRequest, assignmentID string) {
	data, err := json.Marshal(Event{
		TenantID:     req.TenantID,
		EquipmentID:  req.EquipmentID,
		IssueID:      req.IssueID,
		AssignmentID: assignmentID,
		Priority:     req.Priority,
		Time:         time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("marshal escalation event", zap.Error(err))
		return
	}
	subject := a.prefix + "." + req.TenantID
	if err := a.nc.Publish(subject, data); err != nil {
		a.logger.Warn("publish escalation event", zap.String("subject", subject), zap.Error(err))
	}
}
