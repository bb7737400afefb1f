// ABOUTME: Ingest command builds the vector index from a JSONL article file
// ABOUTME: Chunks, embeds and atomically replaces the persisted index
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/app"
	"github.com/harper/ragchat/internal/core"
)

var (
	ingestSource       string
	ingestChunkSize    int
	ingestChunkOverlap int
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <articles.jsonl>",
		Short: "Build the vector index from articles",
		Long: `Build the vector index from a JSONL file of articles.

Each line is a JSON object with "content" and optionally "title",
"link" and "source", as written by the article scrapers. The articles are split into overlapping chunks,
embedded, and saved to the index directory. A running server picks the
new index up without restarting.

The build is all-or-nothing: if any chunk fails to embed the previous
index is left in place.`,
		Example: `  ragchat ingest articles.jsonl
  ragchat ingest articles.jsonl --source fortune
  ragchat ingest articles.jsonl --chunk-size 800 --chunk-overlap 100`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringVar(&ingestSource, "source", "", "Source label for articles with neither source nor link")
	cmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Chunk size in characters (default $RAGCHAT_CHUNK_SIZE or 500)")
	cmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", -1, "Chunk overlap in characters (default $RAGCHAT_CHUNK_OVERLAP or 50)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	if cmd.Flags().Changed("chunk-size") {
		if err := validatePositiveInt(ingestChunkSize, "chunk-size"); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ingestChunkSize > 0 {
		cfg.ChunkSize = ingestChunkSize
	}
	if ingestChunkOverlap >= 0 {
		cfg.ChunkOverlap = ingestChunkOverlap
	}

	docs, err := core.ReadDocumentsFile(path, ingestSource)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Verbose: verbose, SkipIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var progress func(done, total int)
	if !quiet {
		fmt.Fprintf(out, "Embedding %d articles...\n", len(docs))
		progress = func(done, total int) {
			if verbose || done == total {
				fmt.Fprintf(out, "  %d/%d chunks embedded\n", done, total)
			}
		}
	}

	_, build, err := a.NewIngestor(progress).Ingest(ctx, docs, a.Layout.IndexDir, path)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(out, build)
	}
	if !quiet {
		fmt.Fprintf(out, "✓ Indexed %d chunks from %d articles (dim %d) in %s\n",
			build.Chunks, build.Documents, build.Dimension, build.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "  Index: %s\n", build.IndexDir)
		fmt.Fprintf(out, "  Build: %s\n", build.BuildID)
	}
	return nil
}
