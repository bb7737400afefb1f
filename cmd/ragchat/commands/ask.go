// ABOUTME: Ask command answers one question against the index
// ABOUTME: Supports continuing a session and attaching an image, CSV or PDF file
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/app"
	"github.com/harper/ragchat/internal/models"
)

var (
	askSession    string
	askAttach     string
	askAttachKind string
)

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the indexed articles",
		Long: `Ask a single question and print the answer.

Pass --session to continue an earlier conversation; its recorded history
is sent along with the question. Attach an image, CSV or PDF with
--attach to answer from that file instead of the index.`,
		Example: `  ragchat ask "What did Fortune report about AI chips?"
  ragchat ask "And what about Nvidia?" --session sess_20260301_101500_1a2b3c4d
  ragchat ask "Which region had the most sales?" --attach sales.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().StringVarP(&askSession, "session", "s", "", "Session id to continue")
	cmd.Flags().StringVarP(&askAttach, "attach", "a", "", "File to attach (image, CSV or PDF)")
	cmd.Flags().StringVar(&askAttachKind, "attach-kind", "", "Attachment kind when the extension is ambiguous: image, csv or pdf")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	var att *models.Attachment
	if askAttach != "" {
		a, err := loadAttachment(askAttach, askAttachKind)
		if err != nil {
			return err
		}
		att = a
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Verbose: verbose})
	if err != nil {
		return err
	}
	defer a.Close()

	req := models.ChatRequest{
		Question:   question,
		SessionID:  askSession,
		Attachment: att,
	}
	if askSession != "" {
		history, err := a.Memory.History(askSession)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		req.History = historyMessages(history)
	}

	result, err := a.Orchestrator.Chat(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, result)
	}
	fmt.Fprintln(out, result.Response)
	if !quiet {
		fmt.Fprintf(out, "\n(session: %s)\n", result.SessionID)
	}
	return nil
}

// historyMessages replays a recorded session as client history
func historyMessages(session *models.Session) []models.HistoryMessage {
	if session == nil {
		return nil
	}
	history := make([]models.HistoryMessage, 0, len(session.Turns))
	for _, t := range session.Turns {
		history = append(history, models.HistoryMessage{Role: t.Role, Text: t.Text})
	}
	return history
}
