// Package http provides the HTTP API for fixdesk.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/logging"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
)

// SessionService is the part of session.Service the API exposes.
type SessionService interface {
	CreateSession(ctx context.Context, tenantID, userID string, opts session.CreateOptions) (string, error)
	PostMessage(ctx context.Context, sessionID, text string) (session.Turn, error)
	RecordSolutionFeedback(ctx context.Context, sessionID, solutionText string, worked bool) (session.Turn, error)
	GetDiagnosisResult(ctx context.Context, sessionID string) (diagnosis.Result, error)
	GetSession(ctx context.Context, sessionID string) (*conversation.Session, error)
	Messages(ctx context.Context, sessionID string) ([]conversation.Message, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP endpoints for fixdesk.
type Server struct {
	echo     *echo.Echo
	sessions SessionService
	pinger   Pinger
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. pinger may be nil.
func NewServer(sessions SessionService, pinger Pinger, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		pinger:   pinger,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/sessions/:id/messages", s.handleListMessages)
	v1.POST("/sessions/:id/messages", s.handlePostMessage)
	v1.POST("/sessions/:id/feedback", s.handleFeedback)
	v1.GET("/sessions/:id/diagnosis", s.handleDiagnosis)
}

// Echo exposes the router so the daemon can mount extra handlers (/metrics).
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth reports liveness and, when a store is wired, its reachability.
func (s *Server) handleHealth(c echo.Context) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request().Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: "unreachable"})
		}
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
