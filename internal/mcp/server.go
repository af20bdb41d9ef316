package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
)

// SessionService is the part of session.Service the tools call.
type SessionService interface {
	CreateSession(ctx context.Context, tenantID, userID string, opts session.CreateOptions) (string, error)
	PostMessage(ctx context.Context, sessionID, text string) (session.Turn, error)
	RecordSolutionFeedback(ctx context.Context, sessionID, solutionText string, worked bool) (session.Turn, error)
	GetDiagnosisResult(ctx context.Context, sessionID string) (diagnosis.Result, error)
	GetSession(ctx context.Context, sessionID string) (*conversation.Session, error)
}

// Server is an MCP server over the session service.
type Server struct {
	mcp      *mcp.Server
	sessions SessionService
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "fixdesk")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fixdesk",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server over sessions.
func NewServer(cfg *Config, sessions SessionService) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		sessions: sessions,
		metrics:  NewMetrics(cfg.Logger),
		logger:   cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves a single client on t until it disconnects or ctx ends.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
