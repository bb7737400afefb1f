// ABOUTME: Cache command inspects and prunes persisted attachment context
// ABOUTME: Entries older than the given age are removed by prune
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheOlderThan time.Duration

// NewCacheCmd creates the cache command with stats and prune subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the retrieval cache",
		Long: `Inspect or prune the persisted retrieval cache.

Extracted attachment context is cached by content hash so the same file is
only described or parsed once. Pruning removes entries older than a given age.`,
		Example: `  ragchat cache stats
  ragchat cache prune --older-than 720h`,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached entries",
		RunE:  runCacheStats,
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cache entries older than --older-than",
		RunE:  runCachePrune,
	}
	pruneCmd.Flags().DurationVar(&cacheOlderThan, "older-than", 30*24*time.Hour, "Remove entries older than this age")

	cmd.AddCommand(statsCmd)
	cmd.AddCommand(pruneCmd)

	return cmd
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.CountCache()
	if err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"entries": count})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cached entries: %d\n", count)
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	if cacheOlderThan <= 0 {
		return fmt.Errorf("older-than must be positive, got %s", cacheOlderThan)
	}

	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.PruneCache(cacheOlderThan)
	if err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d cache entries older than %s\n", removed, cacheOlderThan)
	}
	return nil
}
