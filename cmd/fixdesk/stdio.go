package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/mcp"
	"github.com/fyrsmithlabs/fixdesk/internal/services"
)

// runMCP serves the session tools on stdio until the client disconnects or
// ctx is cancelled. Logs go to stderr.
func runMCP(ctx context.Context, reg services.Registry, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "fixdesk",
		Version: version,
		Logger:  logger,
	}, reg.Sessions())
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	fmt.Fprintln(os.Stderr, "fixdesk mcp mode started")
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server error: %w", err)
	}
	logger.Info("mcp server shutdown complete")
	return nil
}
