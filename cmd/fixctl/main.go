// Package main implements fixctl, a command-line client for the fixdesk HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/fixdesk/internal/http"
)

var (
	// serverURL is the base URL for the fixdesk HTTP server
	serverURL string
	// jsonOutput prints raw response bodies
	jsonOutput bool
	// version information
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fixctl",
		Short: "CLI for the fixdesk diagnosis API",
		Long: `fixctl is a command-line interface for the fixdesk HTTP server.
It can start diagnosis sessions, chat in them, report solution feedback and
check server health.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "fixdesk server URL")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	root.AddCommand(newHealthCmd())
	root.AddCommand(newSessionCmd())
	return root
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check fixdesk server health",
		Long: `Check the health status of the fixdesk HTTP server.

Examples:
  # Check health
  fixctl health

  # Check health on a different server
  fixctl health --server http://localhost:9090`,
		RunE: runHealth,
	}
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var resp httpserver.HealthResponse
	raw, err := call(http.MethodGet, "/health", nil, &resp)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		_, err := out.Write(raw)
		return err
	}
	fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
	if resp.Store != "" {
		fmt.Fprintf(out, "Store: %s\n", resp.Store)
	}
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	return nil
}

// call sends body as JSON and decodes a 2xx reply into out. It returns the
// raw body.
func call(method, path string, body, out interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr httpserver.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return raw, &serverError{status: resp.StatusCode, resp: apiErr}
		}
		return raw, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return raw, nil
}

// serverError is a decoded API error reply.
type serverError struct {
	status int
	resp   httpserver.ErrorResponse
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned status %d (%s): %s", e.status, e.resp.Kind, e.resp.Error)
}
