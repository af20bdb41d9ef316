package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
)

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create session request", zap.Error(err))
		return s.fail(c, errs.Validation("http.create_session", "invalid request body"), nil)
	}
	id, err := s.sessions.CreateSession(c.Request().Context(), req.TenantID, req.UserID, session.CreateOptions{
		EquipmentID: strings.TrimSpace(req.EquipmentID),
		Language:    req.Language,
	})
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleListMessages(c echo.Context) error {
	msgs, err := s.sessions.Messages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: nonNil(msgs)})
}

func (s *Server) handlePostMessage(c echo.Context) error {
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errs.Validation("http.post_message", "invalid request body"), nil)
	}
	turn, err := s.sessions.PostMessage(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		return s.fail(c, err, turn.Messages)
	}
	return reply(c, turn)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errs.Validation("http.feedback", "invalid request body"), nil)
	}
	if req.Worked == nil {
		return s.fail(c, errs.Validation("http.feedback", "worked is required"), nil)
	}
	turn, err := s.sessions.RecordSolutionFeedback(c.Request().Context(), c.Param("id"), req.SolutionText, *req.Worked)
	if err != nil {
		return s.fail(c, err, turn.Messages)
	}
	return reply(c, turn)
}

func (s *Server) handleDiagnosis(c echo.Context) error {
	res, err := s.sessions.GetDiagnosisResult(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, nil)
	}
	body, err := diagnosis.Marshal(res)
	if err != nil {
		return s.fail(c, errs.New(errs.KindInternal, "http.diagnosis", "", err), nil)
	}
	return c.JSONBlob(http.StatusOK, body)
}

// reply answers a turn with the new messages and the step the turn committed.
func reply(c echo.Context, turn session.Turn) error {
	c.Set(turnStepKey, turn.Step)
	return c.JSON(http.StatusOK, MessagesResponse{Step: turn.Step, Messages: nonNil(turn.Messages)})
}

func (s *Server) fail(c echo.Context, err error, msgs []conversation.Message) error {
	kind := errs.KindOf(err)
	status := StatusFor(kind)
	c.Set(errorKindKey, kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: string(kind), Messages: msgs})
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidationFailed:
		return http.StatusBadRequest
	case errs.KindPersistenceFailed:
		return http.StatusServiceUnavailable
	case errs.KindAdapterUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(msgs []conversation.Message) []conversation.Message {
	if msgs == nil {
		return []conversation.Message{}
	}
	return msgs
}
