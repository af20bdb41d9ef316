// Fixdesk is the equipment diagnosis daemon.
//
// It serves the session API over HTTP, or the same operations as MCP tools on
// stdio.
//
// Configuration is loaded from an optional YAML file and FIXDESK_* environment
// variables (a .env file in the working directory is read first). See
// internal/config for details.
//
// Usage:
//
//	# Serve HTTP with defaults
//	fixdesk
//
//	# Serve MCP on stdio
//	fixdesk mcp
//
//	# Configure via environment
//	FIXDESK_SERVER_PORT=9090 FIXDESK_AI_PROVIDER=openai fixdesk
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	httpserver "github.com/fyrsmithlabs/fixdesk/internal/http"
	"github.com/fyrsmithlabs/fixdesk/internal/logging"
	"github.com/fyrsmithlabs/fixdesk/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type mode int

const (
	modeHTTP mode = iota
	modeMCP
)

func main() {
	configPath := flag.String("config", os.Getenv("FIXDESK_CONFIG"), "path to a YAML config file")
	flag.Parse()
	args := flag.Args()

	m := modeHTTP
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			m = modeMCP
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  fixdesk           Serve the HTTP API\n")
			fmt.Fprintf(os.Stderr, "  fixdesk mcp       Serve MCP tools on stdio\n")
			fmt.Fprintf(os.Stderr, "  fixdesk version   Show version information\n")
			os.Exit(1)
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, m); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("fixdesk by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the services and serves until ctx is cancelled.
func run(ctx context.Context, configPath string, m mode) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.Stderr = m == modeMCP
	lg, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = lg.Sync() // Best-effort sync on shutdown
	}()
	logger := lg.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	reg, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("fixdesk starting",
		zap.String("version", version),
		zap.String("store", cfg.Store.Path),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("assigner", cfg.Escalation.Assigner),
		zap.Bool("telemetry", tel.IsEnabled()))

	if m == modeMCP {
		return runMCP(ctx, reg, logger)
	}
	return serveHTTP(ctx, cfg, reg.Sessions(), reg.Store(), logger)
}

// serveHTTP starts the API and blocks until ctx is cancelled.
func serveHTTP(ctx context.Context, cfg *config.Config, sessions httpserver.SessionService, pinger httpserver.Pinger, logger *zap.Logger) error {
	srv, err := httpserver.NewServer(sessions, pinger, logger, &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// Register metrics endpoint
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
