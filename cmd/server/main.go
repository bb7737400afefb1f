// ABOUTME: Main entry point for the standalone ragchat HTTP server
// ABOUTME: Loads configuration and the index, then serves the chat API until interrupted
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/ragchat/internal/app"
	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/httpapi"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Watch: true})
	if err != nil {
		log.Fatalf("Failed to initialize ragchat: %v", err)
	}
	defer a.Close()

	server := httpapi.NewServer(a.Orchestrator, a.Memory, httpapi.Options{
		Addr:  cfg.HTTPAddr,
		Index: a.Index,
		Cache: a.Cache,
	})

	log.Printf("Serving %d indexed chunks", a.Index.Len())
	if err := server.Start(ctx); err != nil {
		log.Printf("Server error: %v", err)
		return
	}
	log.Println("Shutdown complete")
}
