package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
)

type sessionCreateInput struct {
	TenantID    string `json:"tenant_id" jsonschema:"Tenant (business) identifier"`
	UserID      string `json:"user_id" jsonschema:"Identifier of the person reporting the problem"`
	EquipmentID string `json:"equipment_id,omitempty" jsonschema:"Known equipment id; skips appliance recognition"`
	Language    string `json:"language,omitempty" jsonschema:"Reply language (en or de)"`
}

type sessionCreateOutput struct {
	SessionID string `json:"session_id" jsonschema:"New session id"`
	Step      string `json:"step" jsonschema:"Current conversation step"`
}

type sessionMessageInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id"`
	Text      string `json:"text" jsonschema:"What the user wrote"`
}

type sessionFeedbackInput struct {
	SessionID    string `json:"session_id" jsonschema:"Session id"`
	SolutionText string `json:"solution_text,omitempty" jsonschema:"Solution being rated; empty means the one currently tested"`
	Worked       bool   `json:"worked" jsonschema:"Whether the solution fixed the problem"`
}

// messageView is a transcript entry with its payload flattened to JSON text.
type messageView struct {
	Seq         int    `json:"seq"`
	Sender      string `json:"sender"`
	Text        string `json:"text"`
	PayloadType string `json:"payload_type,omitempty"`
	Payload     string `json:"payload,omitempty" jsonschema:"Structured payload as JSON"`
}

type turnOutput struct {
	Step     string        `json:"step" jsonschema:"Conversation step after the turn"`
	Messages []messageView `json:"messages" jsonschema:"Messages appended by the turn"`
}

type sessionDiagnosisInput struct {
	SessionID string `json:"session_id" jsonschema:"Session id"`
}

type sessionDiagnosisOutput struct {
	Type      string `json:"type" jsonschema:"issue_matches, problem_matches or ai_diagnosis"`
	Source    string `json:"source" jsonschema:"Where the candidates came from"`
	Diagnosis string `json:"diagnosis" jsonschema:"Full diagnosis result as JSON"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_create",
		Description: "Start a diagnosis conversation for a tenant's broken equipment",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionCreateInput) (*mcp.CallToolResult, sessionCreateOutput, error) {
		var out sessionCreateOutput
		err := s.instrument(ctx, "session_create", func() error {
			id, err := s.sessions.CreateSession(ctx, args.TenantID, args.UserID, session.CreateOptions{
				EquipmentID: args.EquipmentID,
				Language:    args.Language,
			})
			if err != nil {
				return err
			}
			out.SessionID = id
			out.Step = s.stepOf(ctx, id)
			return nil
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_message",
		Description: "Send the user's next message and receive the system replies",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionMessageInput) (*mcp.CallToolResult, turnOutput, error) {
		var out turnOutput
		err := s.instrument(ctx, "session_message", func() error {
			turn, err := s.sessions.PostMessage(ctx, args.SessionID, args.Text)
			if err != nil {
				return err
			}
			out, err = turnView(turn)
			return err
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_feedback",
		Description: "Report whether a presented solution worked",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionFeedbackInput) (*mcp.CallToolResult, turnOutput, error) {
		var out turnOutput
		err := s.instrument(ctx, "session_feedback", func() error {
			turn, err := s.sessions.RecordSolutionFeedback(ctx, args.SessionID, args.SolutionText, args.Worked)
			if err != nil {
				return err
			}
			out, err = turnView(turn)
			return err
		})
		return nil, out, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_diagnosis",
		Description: "Fetch the latest diagnosis result of a session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionDiagnosisInput) (*mcp.CallToolResult, sessionDiagnosisOutput, error) {
		var out sessionDiagnosisOutput
		err := s.instrument(ctx, "session_diagnosis", func() error {
			res, err := s.sessions.GetDiagnosisResult(ctx, args.SessionID)
			if err != nil {
				return err
			}
			body, err := diagnosis.Marshal(res)
			if err != nil {
				return fmt.Errorf("encode diagnosis: %w", err)
			}
			out = sessionDiagnosisOutput{
				Type:      string(res.Kind()),
				Source:    string(res.Source()),
				Diagnosis: string(body),
			}
			return nil
		})
		return nil, out, err
	})
}

// instrument records metrics around fn and turns its error into a tool error.
func (s *Server) instrument(ctx context.Context, tool string, fn func() error) error {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	err := fn()
	s.metrics.DecrementActive(ctx, tool)
	s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Debug("tool failed", zap.String("tool", tool), zap.Error(err))
		return fmt.Errorf("%s: %w", errs.KindOf(err), err)
	}
	return nil
}

func turnView(turn session.Turn) (turnOutput, error) {
	out := turnOutput{Step: string(turn.Step), Messages: make([]messageView, 0, len(turn.Messages))}
	for _, m := range turn.Messages {
		v := messageView{Seq: m.Seq, Sender: string(m.Sender), Text: m.Text}
		if m.Payload != nil {
			body, err := conversation.MarshalPayload(m.Payload)
			if err != nil {
				return turnOutput{}, fmt.Errorf("encode payload: %w", err)
			}
			v.PayloadType = string(m.Payload.PayloadKind())
			v.Payload = string(body)
		}
		out.Messages = append(out.Messages, v)
	}
	return out, nil
}

func (s *Server) stepOf(ctx context.Context, sessionID string) string {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}
	return string(sess.Step)
}
