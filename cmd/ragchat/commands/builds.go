// ABOUTME: Builds command shows the history of index builds
// ABOUTME: Lists chunk counts, dimensions and checksums of each ingest run
package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/models"
)

var buildsLimit int

// NewBuildsCmd creates the builds command
func NewBuildsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Show index build history",
		Long: `Show the history of index builds, newest first.

Each ` + "`ragchat ingest`" + ` run records the source file, chunk count,
embedding model and a checksum of the saved vectors.`,
		Example: `  ragchat builds
  ragchat builds --limit 3 --format json`,
		RunE: runBuilds,
	}

	cmd.Flags().IntVarP(&buildsLimit, "limit", "n", 10, "Maximum builds to show")

	return cmd
}

func runBuilds(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(buildsLimit, "limit"); err != nil {
		return err
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	builds, err := store.ListBuilds(buildsLimit)
	if err != nil {
		return fmt.Errorf("listing builds: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if builds == nil {
			builds = []models.IndexBuild{}
		}
		return writeJSON(out, builds)
	}

	if len(builds) == 0 {
		if !quiet {
			fmt.Fprintf(out, "No index builds yet. Run `ragchat ingest <file>` to build one.\n")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BUILD\tCREATED\tDOCS\tCHUNKS\tDIM\tMODEL\tDURATION\tSHA256\n")
	fmt.Fprintf(w, "-----\t-------\t----\t------\t---\t-----\t--------\t------\n")
	for _, b := range builds {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			b.BuildID,
			formatTime(b.CreatedAt),
			b.Documents,
			b.Chunks,
			b.Dimension,
			b.EmbeddingModel,
			b.Duration.Round(time.Millisecond),
			truncate(b.VectorsSHA256, 12))
	}
	w.Flush()
	return nil
}
