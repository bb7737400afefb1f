// ABOUTME: Wires configuration, storage, model providers and the chat pipeline
// ABOUTME: Shared by the CLI commands, the HTTP server and the MCP server
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/storage"
	"github.com/harper/ragchat/internal/storage/sqlite"
	"github.com/harper/ragchat/internal/util"
)

// Options adjusts how much of the application is started
type Options struct {
	Verbose bool
	// Watch starts the index hot-reload watcher when the config enables it
	Watch bool
	// SkipIndex starts with an empty index instead of loading the persisted one
	SkipIndex bool
}

// App holds the running components
type App struct {
	Config       *config.Config
	Layout       *storage.Layout
	Store        *sqlite.Storage
	Providers    *llm.Providers
	Index        *core.VectorIndex
	Cache        *core.RetrievalCache
	Memory       *core.SessionMemory
	Orchestrator *core.Orchestrator

	watcher *core.IndexWatcher
}

// OpenStore resolves the data layout and opens the SQLite database. It needs
// no API keys, so read-only commands use it directly.
func OpenStore(cfg *config.Config) (*storage.Layout, *sqlite.Storage, error) {
	layout, err := storage.NewLayout(cfg.DataDir, cfg.IndexDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.NewStorageWithPath(layout.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}
	return layout, store, nil
}

// New builds the full chat pipeline. A missing index starts empty so the
// server can come up before the first ingest; a corrupt index is an error.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	layout, store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	providers, err := llm.NewProviders(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	index := core.NewVectorIndex()
	if !opts.SkipIndex {
		index, err = loadIndex(layout, providers.EmbeddingModel)
	}
	if err != nil {
		_ = providers.Close()
		_ = store.Close()
		return nil, err
	}

	cache := core.NewRetrievalCache(store)
	memory := core.NewSessionMemory(store)
	resolver := core.NewContextResolver(index, providers.Embedder, cache, providers.Vision, providers.Generator, core.ResolverOptions{
		TopK:               cfg.TopK,
		Lambda:             cfg.MMRLambda,
		MaxAttachmentChars: cfg.MaxAttachmentChars,
		Retry:              RetryPolicy(cfg),
	})
	orchestrator := core.NewOrchestrator(resolver, core.NewPromptComposer(cfg.MaxPromptTokens), memory, providers.Generator, core.OrchestratorOptions{
		Retry:   RetryPolicy(cfg),
		Verbose: opts.Verbose,
	})

	a := &App{
		Config:       cfg,
		Layout:       layout,
		Store:        store,
		Providers:    providers,
		Index:        index,
		Cache:        cache,
		Memory:       memory,
		Orchestrator: orchestrator,
	}

	if opts.Watch && cfg.WatchIndex {
		a.watcher = core.NewIndexWatcher(index, layout.IndexDir)
		if err := a.watcher.Start(ctx); err != nil {
			log.Printf("[App] Warning: index hot reload disabled: %v", err)
			a.watcher = nil
		}
	}

	return a, nil
}

// RetryPolicy is the upstream retry policy described by cfg
func RetryPolicy(cfg *config.Config) util.RetryPolicy {
	return util.RetryPolicy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.RetryDelay,
		AttemptTimeout: cfg.RequestTimeout,
		Retryable:      llm.IsTransient,
	}
}

// NewIngestor builds an ingestor that records builds in the app's store
func (a *App) NewIngestor(progress func(done, total int)) *core.Ingestor {
	return core.NewIngestor(a.Providers.Embedder, a.Store, core.IngestOptions{
		ChunkSize:      a.Config.ChunkSize,
		ChunkOverlap:   a.Config.ChunkOverlap,
		EmbeddingModel: a.Providers.EmbeddingModel,
		Limiter:        util.NewRateLimiter(a.Config.EmbedRate, 1),
		Retry:          IngestRetryPolicy(a.Config),
		RetryAfter:     llm.RetryAfter,
		Progress:       progress,
	})
}

// IngestRetryPolicy re-runs an embedding batch only when the upstream is
// throttling. The embedding clients already retry other transient failures.
func IngestRetryPolicy(cfg *config.Config) util.RetryPolicy {
	policy := RetryPolicy(cfg)
	policy.Retryable = func(err error) bool {
		_, throttled := llm.RetryAfter(err)
		return throttled
	}
	return policy
}

// Close stops the watcher and releases storage and provider connections
func (a *App) Close() error {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			log.Printf("[App] Warning: error closing providers: %v", err)
		}
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func loadIndex(layout *storage.Layout, embeddingModel string) (*core.VectorIndex, error) {
	if !layout.HasIndex() {
		log.Printf("[App] No index at %s; answers will have no article context until `ragchat ingest` runs", layout.IndexDir)
		return core.NewVectorIndex(), nil
	}

	index, err := core.LoadVectorIndex(layout.IndexDir)
	if err != nil {
		return nil, err
	}
	if model := index.EmbeddingModel(); model != "" && model != embeddingModel {
		log.Printf("[App] Warning: index was built with %s but queries use %s", model, embeddingModel)
	}
	log.Printf("[App] Loaded index with %d chunks from %s", index.Len(), layout.IndexDir)
	return index, nil
}
