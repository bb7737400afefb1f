// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents like Claude chat with the article index via stdio
package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/ragchat/internal/app"
	"github.com/harper/ragchat/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs ragchat as an MCP (Model Context Protocol) server, enabling
LLM agents like Claude to ask questions, search the index and read
session history via stdio.

Configure in Claude Desktop's config file to enable the ragchat tools.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by Claude Desktop)
  ragchat mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "ragchat": {
  #       "command": "ragchat",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Verbose: verbose, Watch: true})
	if err != nil {
		return fmt.Errorf("failed to initialize ragchat: %w", err)
	}

	server := mcpserver.NewMCPServer(
		"ragchat",
		versionInfo.Version,
	)

	mcp.RegisterTools(server, mcp.Deps{
		Chat:     a.Orchestrator,
		Sessions: a.Memory,
		Index:    a.Index,
		Embedder: a.Providers.Embedder,
		TopK:     cfg.TopK,
		Lambda:   cfg.MMRLambda,
	})

	if !quiet {
		log.Printf("ragchat MCP server starting on stdio (%d chunks indexed)...", a.Index.Len())
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		if !quiet {
			log.Println("Shutdown signal received, gracefully shutting down...")
		}
		if err := a.Close(); err != nil {
			log.Printf("Warning: Error closing storage: %v", err)
		}
		if !quiet {
			log.Println("Shutdown complete")
		}

	case err := <-serverErr:
		_ = a.Close()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
