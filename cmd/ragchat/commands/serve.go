// ABOUTME: Serve command runs the HTTP chat API
// ABOUTME: Loads the index, starts hot reload and serves until interrupted
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
	"github.com/harper/ragchat/internal/httpapi"
)

var (
	serveAddr    string
	serveNoWatch bool
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		Long: `Run the HTTP chat API.

Serves POST /api/chat, GET /api/sessions and GET /healthz. The index is
reloaded automatically whenever ` + "`ragchat ingest`" + ` publishes a new one.`,
		Example: `  ragchat serve
  ragchat serve --addr 127.0.0.1:9000
  ragchat serve --no-watch`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $RAGCHAT_HTTP_ADDR or :8000)")
	cmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable index hot reload")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Verbose: verbose, Watch: !serveNoWatch})
	if err != nil {
		return fmt.Errorf("starting ragchat: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Warning: Error closing storage: %v", err)
		}
	}()

	server := httpapi.NewServer(a.Orchestrator, a.Memory, httpapi.Options{
		Addr:  cfg.HTTPAddr,
		Index: a.Index,
		Cache: a.Cache,
	})

	if !quiet {
		log.Printf("Serving %d indexed chunks", a.Index.Len())
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	if !quiet {
		log.Println("Shutdown complete")
	}
	return nil
}
