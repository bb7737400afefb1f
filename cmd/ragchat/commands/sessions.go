// ABOUTME: Sessions command lists recorded conversations and shows one transcript
// ABOUTME: Reads the append-only session log without needing API keys
package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/models"
)

var sessionsLimit int

// NewSessionsCmd creates the sessions command with list and show subcommands
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and inspect chat sessions",
		Long: `List and inspect recorded chat sessions.

Every answered question is recorded with its session id. Use
` + "`sessions show`" + ` to print a full transcript.`,
		Example: `  ragchat sessions
  ragchat sessions list --limit 5
  ragchat sessions show sess_20260301_101500_1a2b3c4d
  ragchat sessions --format json`,
		RunE: runSessionsList,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		RunE:  runSessionsList,
	}
	listCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to show")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the transcript of one session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsShow,
	}

	cmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to show")
	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)

	return cmd
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(sessionsLimit, "limit"); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	total := len(sessions)
	if len(sessions) > sessionsLimit {
		sessions = sessions[:sessionsLimit]
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if sessions == nil {
			sessions = []models.SessionSummary{}
		}
		return writeJSON(out, sessions)
	}

	if len(sessions) == 0 {
		if !quiet {
			fmt.Fprintf(out, "No sessions found\n")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TITLE\tTURNS\tUPDATED\tSESSION ID\n")
	fmt.Fprintf(w, "-----\t-----\t-------\t----------\n")
	for _, s := range sessions {
		title := strings.Join(strings.Fields(s.Title), " ")
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", truncate(title, 40), s.TurnCount, formatTime(s.UpdatedAt), s.SessionID)
	}
	w.Flush()

	if !quiet {
		fmt.Fprintf(out, "\nShowing %d of %d session(s)\n", len(sessions), total)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := store.GetSession(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", args[0])
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, session)
	}

	fmt.Fprintf(out, "Session: %s\n", session.SessionID)
	fmt.Fprintf(out, "Started: %s\n", session.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "Turns:   %d\n\n", len(session.Turns))
	for _, t := range session.Turns {
		fmt.Fprintf(out, "%s: %s\n", t.Role, t.Text)
		if t.Attachment != nil {
			fmt.Fprintf(out, "  [attached %s %s, %d bytes]\n", t.Attachment.Kind, t.Attachment.Filename, t.Attachment.Size)
		}
	}
	return nil
}
