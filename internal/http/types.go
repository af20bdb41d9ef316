package http

import (
	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	EquipmentID string `json:"equipment_id,omitempty"`
	Language    string `json:"language,omitempty"`
}

// CreateSessionResponse is the response body for POST /api/v1/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// PostMessageRequest is the request body for POST /api/v1/sessions/:id/messages.
type PostMessageRequest struct {
	Text string `json:"text"`
}

// FeedbackRequest is the request body for POST /api/v1/sessions/:id/feedback.
// An empty SolutionText means the solution currently being tested.
type FeedbackRequest struct {
	SolutionText string `json:"solution_text"`
	Worked       *bool  `json:"worked"`
}

// MessagesResponse carries messages in Seq order.
type MessagesResponse struct {
	Step     conversation.Step      `json:"step,omitempty"`
	Messages []conversation.Message `json:"messages"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	// Messages is set when the call still produced a reply, e.g. the notice
	// for a completed session.
	Messages []conversation.Message `json:"messages,omitempty"`
}
