// ABOUTME: Root command for the ragchat CLI
// ABOUTME: Registers subcommands and the global verbose, quiet and format flags
package commands

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/config"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string
)

const banner = `
██████╗  █████╗  ██████╗  ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔══██╗██╔════╝ ██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██████╔╝███████║██║  ███╗██║     ███████║███████║   ██║
██╔══██╗██╔══██║██║   ██║██║     ██╔══██║██╔══██║   ██║
██║  ██║██║  ██║╚██████╔╝╚██████╗██║  ██║██║  ██║   ██║
╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragchat",
		Short: "Retrieval-augmented chat over your article corpus",
		Long: banner + `

ragchat answers questions from an indexed article corpus. Questions are
matched against a local vector index with diversity-aware retrieval, and
images, CSV files and PDFs can be attached for one-off context.

Conversations are kept per session and can be listed or exported.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return errors.New("--verbose and --quiet cannot be used together")
			}
			switch outputFormat {
			case "auto", "json", "table":
			default:
				return fmt.Errorf("unknown format %q (want auto, json or table)", outputFormat)
			}
			if quiet {
				log.SetOutput(io.Discard)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, json or table")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default $RAGCHAT_CONFIG)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewBuildsCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads .env, then the config file and environment
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}
