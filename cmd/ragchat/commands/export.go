// ABOUTME: Export command writes recorded sessions to YAML or Markdown
// ABOUTME: Exports every session and the index build history, or selected sessions only
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/storage/sqlite"
)

var (
	exportType   string
	exportOutput string
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [session-id...]",
		Short: "Export sessions to YAML or Markdown",
		Long: `Export recorded sessions to YAML or Markdown.

With no session ids every session is exported together with the index
build history. Output goes to stdout unless --output is given.`,
		Example: `  ragchat export
  ragchat export --type markdown --output chats.md
  ragchat export sess_20260301_101500_1a2b3c4d -o session.yaml`,
		RunE: runExport,
	}

	cmd.Flags().StringVarP(&exportType, "type", "t", "yaml", "Export format: yaml or markdown")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// exporter writes an export either to a stream or to a file
type exporter struct {
	write  func(io.Writer, *sqlite.ExportData) error
	toFile func(store *sqlite.Storage, path string, ids ...string) error
}

// exporterFor picks the exporter for an export format name
func exporterFor(format string) (*exporter, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return &exporter{write: sqlite.WriteYAML, toFile: (*sqlite.Storage).ExportToYAML}, nil
	case "markdown", "md":
		return &exporter{write: sqlite.WriteMarkdown, toFile: (*sqlite.Storage).ExportToMarkdown}, nil
	}
	return nil, fmt.Errorf("unknown export type %q (want yaml or markdown)", format)
}

func runExport(cmd *cobra.Command, args []string) error {
	exp, err := exporterFor(exportType)
	if err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if exportOutput != "" {
		if err := exp.toFile(store, exportOutput, args...); err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported to %s\n", exportOutput)
		}
		return nil
	}

	data, err := store.ExportSessions(args...)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	return exp.write(cmd.OutOrStdout(), data)
}
