// Package main implements grv, the command-line client for a grievanced
// server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/grievanced/internal/client"
	"github.com/fyrsmithlabs/grievanced/internal/console"
)

var (
	// serverURL is the base URL of the grievanced HTTP server
	serverURL string
	// requestTimeout bounds each API call
	requestTimeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grv",
	Short: "Client for the grievanced intake server",
	Long: `grv talks to a grievanced server. It files grievances through an
interactive conversation, looks up submitted grievances and appends notes
to them.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GRV_SERVER", "http://localhost:8080"), "grievanced server URL")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "per-request timeout")
	rootCmd.AddCommand(chatCmd, statusCmd, amendCmd, healthCmd, versionCmd)
}

// chatCmd runs the interactive intake conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "File a grievance interactively",
	Long: `Start an intake conversation in the terminal.

Replies are free text. Keywords such as "skip", "go back", "restart",
"submit as is" and "exit" (or /skip, /back, ...) steer the conversation.

Examples:
  grv chat
  grv chat --server http://grievanced.internal:8080`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// statusCmd looks up a submitted grievance
var statusCmd = &cobra.Command{
	Use:   "status <grievance-id>",
	Short: "Show the status of a submitted grievance",
	Long: `Show a submitted grievance, its sync status with the case-management
system and any amendments.

Examples:
  grv status GR-20250314-4F7K2Q`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

// amendCmd appends a note to a submitted grievance
var amendCmd = &cobra.Command{
	Use:   "amend <grievance-id> <note>",
	Short: "Append a note to a submitted grievance",
	Long: `Append a note to a submitted grievance. The original submission is
never changed.

Examples:
  grv amend GR-20250314-4F7K2Q "The canal is still broken."`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAmend,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check grievanced server health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the grv version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "grv %s\n", version)
	},
}

func newClient() *client.Client {
	return client.New(serverURL, requestTimeout)
}

func runChat(cmd *cobra.Command, args []string) error {
	model := console.NewModel(newClient(), requestTimeout)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if m, ok := final.(console.Model); ok && m.SubmittedID() != "" {
		fmt.Fprintln(cmd.OutOrStdout(), m.SubmittedID())
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	tr, err := newClient().Track(ctx, args[0])
	if err != nil {
		return err
	}
	printTracking(cmd.OutOrStdout(), tr)
	return nil
}

func runAmend(cmd *cobra.Command, args []string) error {
	note := strings.TrimSpace(strings.Join(args[1:], " "))
	if note == "" {
		return fmt.Errorf("note cannot be empty")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	am, err := newClient().Amend(ctx, args[0], note)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Amendment #%d added to %s\n", am.ID, args[0])
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	status, err := newClient().Health(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: Failed to connect to %s: %v\n", serverURL, err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", status)
	return nil
}

func printTracking(w io.Writer, tr *client.Tracking) {
	fmt.Fprintf(w, "Grievance:   %s\n", tr.ID)
	fmt.Fprintf(w, "Status:      %s\n", tr.Status)
	fmt.Fprintf(w, "Sync:        %s", tr.SyncStatus)
	if tr.LegacyRef != "" {
		fmt.Fprintf(w, " (%s)", tr.LegacyRef)
	}
	fmt.Fprintln(w)
	if len(tr.Categories) > 0 {
		fmt.Fprintf(w, "Categories:  %s\n", strings.Join(tr.Categories, ", "))
	} else {
		fmt.Fprintf(w, "Categories:  none\n")
	}
	if tr.Municipality != "" {
		fmt.Fprintf(w, "Location:    %s\n", tr.Municipality)
	}
	fmt.Fprintf(w, "Summary:     %s\n", tr.Summary)
	fmt.Fprintf(w, "Phone:       %s\n", verifiedLabel(tr.PhoneVerified))
	if !tr.SubmittedAt.IsZero() {
		fmt.Fprintf(w, "Submitted:   %s\n", tr.SubmittedAt.Local().Format(time.RFC1123))
	}
	for _, a := range tr.Amendments {
		fmt.Fprintf(w, "  + %s  %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Note)
	}
}

func verifiedLabel(v bool) string {
	if v {
		return "verified"
	}
	return "not verified"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
