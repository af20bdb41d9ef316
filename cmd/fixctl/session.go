package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	httpserver "github.com/fyrsmithlabs/fixdesk/internal/http"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Work with diagnosis sessions",
	}
	cmd.AddCommand(newSessionCreateCmd(), newSessionSayCmd(), newSessionFeedbackCmd(), newSessionDiagnosisCmd())
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var req httpserver.CreateSessionRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a diagnosis session",
		Long: `Start a diagnosis session for a tenant.

Examples:
  fixctl session create --tenant acme --user u-17
  fixctl session create --tenant acme --user u-17 --equipment eq-3 --language de`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.CreateSessionResponse
			raw, err := call(http.MethodPost, "/api/v1/sessions", req, &resp)
			if err != nil {
				return err
			}
			if jsonOutput {
				_, err := cmd.OutOrStdout().Write(raw)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&req.EquipmentID, "equipment", "", "known equipment id")
	cmd.Flags().StringVar(&req.Language, "language", "", "reply language (en, de)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSessionSayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <session-id> <text...>",
		Short: "Send a message to a session",
		Long: `Send a message and print the replies.

Examples:
  fixctl session say 6f1c... "the oven does not heat"
  fixctl session say 6f1c... 2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return runTurn(cmd, "/messages", args[0], httpserver.PostMessageRequest{Text: text})
		},
	}
}

func newSessionFeedbackCmd() *cobra.Command {
	var solution string
	return withSolutionFlag(&cobra.Command{
		Use:   "feedback <session-id> <worked|failed>",
		Short: "Report whether the current solution worked",
		Long: `Report solution feedback.

Examples:
  fixctl session feedback 6f1c... worked
  fixctl session feedback 6f1c... failed --solution "reset the thermostat"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			worked, err := parseVerdict(args[1])
			if err != nil {
				return err
			}
			return runTurn(cmd, "/feedback", args[0], httpserver.FeedbackRequest{SolutionText: solution, Worked: &worked})
		},
	}, &solution)
}

func withSolutionFlag(cmd *cobra.Command, solution *string) *cobra.Command {
	cmd.Flags().StringVar(solution, "solution", "", "solution text (default: the one being tested)")
	return cmd
}

func newSessionDiagnosisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnosis <session-id>",
		Short: "Print the latest diagnosis result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := call(http.MethodGet, sessionPath(args[0], "/diagnosis"), nil, nil)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return fmt.Errorf("failed to format diagnosis: %w", err)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

// runTurn posts body to a session endpoint and prints the replies. A
// completed session answers with an error that still carries its notice.
func runTurn(cmd *cobra.Command, endpoint, sessionID string, body interface{}) error {
	var resp httpserver.MessagesResponse
	raw, err := call(http.MethodPost, sessionPath(sessionID, endpoint), body, &resp)
	out := cmd.OutOrStdout()
	if err != nil {
		var se *serverError
		if errors.As(err, &se) {
			printMessages(out, se.resp.Messages)
		}
		return err
	}
	if jsonOutput {
		_, err := out.Write(raw)
		return err
	}
	printMessages(out, resp.Messages)
	if resp.Step != "" {
		fmt.Fprintf(out, "(step: %s)\n", resp.Step)
	}
	return nil
}

func printMessages(w io.Writer, msgs []conversation.Message) {
	for _, m := range msgs {
		if m.Sender == conversation.SenderUser {
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n", m.Sender, m.Text)
	}
}

func sessionPath(id, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(id) + suffix
}

func parseVerdict(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "worked", "yes", "y":
		return true, nil
	case "failed", "no", "n":
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("verdict must be worked or failed, got %q", s)
}
