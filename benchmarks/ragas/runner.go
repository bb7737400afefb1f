// ABOUTME: Test runner for RAGAS benchmarks - executes scenarios and collects results
// ABOUTME: Indexes the built-in corpus once, then answers each scenario in a fresh session store

package ragas

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/harper/ragchat/internal/app"
	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage/sqlite"
)

// BenchmarkRunner executes RAGAS benchmark tests
type BenchmarkRunner struct {
	cfg       *config.Config
	embedder  core.Embedder
	generator core.Generator
	vision    core.ImageDescriber
	metrics   *MetricsCalculator
	verbose   bool
	closer    func() error

	indexOnce sync.Once
	index     *core.VectorIndex
	indexErr  error
}

// NewBenchmarkRunner creates a runner backed by the configured model providers
func NewBenchmarkRunner(ctx context.Context, cfg *config.Config, verbose bool) (*BenchmarkRunner, error) {
	providers, err := llm.NewProviders(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model providers: %w", err)
	}
	r := NewRunnerWithModels(cfg, providers.Embedder, providers.Generator, providers.Vision, verbose)
	r.closer = providers.Close
	return r, nil
}

// NewRunnerWithModels creates a runner around explicit models. vision may be nil.
func NewRunnerWithModels(cfg *config.Config, embedder core.Embedder, generator core.Generator, vision core.ImageDescriber, verbose bool) *BenchmarkRunner {
	return &BenchmarkRunner{
		cfg:       cfg,
		embedder:  embedder,
		generator: generator,
		vision:    vision,
		metrics:   NewMetricsCalculator(),
		verbose:   verbose,
	}
}

// Close cleans up benchmark runner resources
func (r *BenchmarkRunner) Close() {
	if r.closer != nil {
		_ = r.closer()
	}
}

// corpusIndex embeds the built-in corpus on first use
func (r *BenchmarkRunner) corpusIndex(ctx context.Context) (*core.VectorIndex, error) {
	r.indexOnce.Do(func() {
		chunker, err := core.NewChunker(r.cfg.ChunkSize, r.cfg.ChunkOverlap)
		if err != nil {
			r.indexErr = err
			return
		}
		chunks := chunker.SplitAll(BenchmarkCorpus())
		r.index, r.indexErr = core.BuildIndex(ctx, chunks, r.embedder, core.BuildOptions{
			EmbeddingModel: r.cfg.EmbeddingModel,
		})
		if r.indexErr == nil && r.verbose {
			fmt.Printf("✓ Indexed %d chunks from the benchmark corpus\n", r.index.Len())
		}
	})
	return r.index, r.indexErr
}

// pipeline is one scenario's isolated chat stack
type pipeline struct {
	store        *sqlite.Storage
	orchestrator *core.Orchestrator
}

func (r *BenchmarkRunner) newPipeline(index *core.VectorIndex) (*pipeline, error) {
	store, err := sqlite.NewStorageInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create test storage: %w", err)
	}

	resolver := core.NewContextResolver(index, r.embedder, core.NewRetrievalCache(store), r.vision, r.generator, core.ResolverOptions{
		TopK:               r.cfg.TopK,
		Lambda:             r.cfg.MMRLambda,
		MaxAttachmentChars: r.cfg.MaxAttachmentChars,
		Retry:              app.RetryPolicy(r.cfg),
	})
	orchestrator := core.NewOrchestrator(resolver, core.NewPromptComposer(r.cfg.MaxPromptTokens), core.NewSessionMemory(store), r.generator, core.OrchestratorOptions{
		Retry:   app.RetryPolicy(r.cfg),
		Verbose: r.verbose,
	})
	return &pipeline{store: store, orchestrator: orchestrator}, nil
}

// RunTest executes a single benchmark test
func (r *BenchmarkRunner) RunTest(ctx context.Context, scenario TestScenario) (TestResult, error) {
	if r.verbose {
		fmt.Printf("\n========================================\n")
		fmt.Printf("RUNNING: %s\n", scenario.Name)
		fmt.Printf("========================================\n")
		fmt.Printf("Description: %s\n\n", scenario.Description)
	}

	index, err := r.corpusIndex(ctx)
	if err != nil {
		return TestResult{}, fmt.Errorf("indexing corpus failed: %w", err)
	}

	p, err := r.newPipeline(index)
	if err != nil {
		return TestResult{}, err
	}
	defer func() { _ = p.store.Close() }()

	// The runner plays a stateless client: it resends the whole history each turn.
	sessionID := models.NewSessionID()
	var history []models.HistoryMessage
	var finalResponse, finalContext string

	for _, turn := range scenario.Turns {
		if r.verbose {
			fmt.Printf("[Turn %d] User: %s\n", turn.TurnNumber, turn.UserMessage)
		}

		req := models.ChatRequest{
			Question:  turn.UserMessage,
			History:   append([]models.HistoryMessage(nil), history...),
			SessionID: sessionID,
		}
		if a := turn.Attachment; a != nil {
			req.Attachment = &models.Attachment{Kind: a.Kind, Filename: a.Filename, Payload: []byte(a.Content)}
		}

		result, err := p.orchestrator.Chat(ctx, req)
		if err != nil {
			return TestResult{}, fmt.Errorf("turn %d failed: %w", turn.TurnNumber, err)
		}

		if r.verbose {
			fmt.Printf("[Turn %d] AI: %s\n\n", turn.TurnNumber, preview(result.Response, 150))
		}

		history = append(history,
			models.HistoryMessage{Role: models.RoleHuman, Text: turn.UserMessage},
			models.HistoryMessage{Role: models.RoleAssistant, Text: result.Response},
		)

		if turn.TurnNumber == scenario.GroundTruth.FinalQueryTurn {
			finalResponse = result.Response
			finalContext = result.Context
		}
	}

	transcript, err := p.orchestrator.Memory().History(sessionID)
	if err != nil {
		return TestResult{}, fmt.Errorf("reading session history: %w", err)
	}

	result := r.metrics.EvaluateTest(scenario, finalResponse, []string{finalContext, core.Render(transcript)})

	if r.verbose {
		fmt.Printf("\n========================================\n")
		fmt.Printf("RESULTS: %s\n", scenario.Name)
		fmt.Printf("========================================\n")
		fmt.Printf("Faithfulness: %.2f\n", result.FaithfulnessScore)
		fmt.Printf("Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Printf("Overall Score: %.2f\n", result.OverallScore)
		fmt.Printf("Status: %s\n", result.Status)
		fmt.Printf("========================================\n\n")
	}

	return result, nil
}

// RunAllTests executes all benchmark tests
func (r *BenchmarkRunner) RunAllTests(ctx context.Context) ([]TestResult, error) {
	scenarios := GetAllTests()
	results := make([]TestResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		result, err := r.RunTest(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("test %s failed: %w", scenario.ID, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// Summary is the exported benchmark report
type Summary struct {
	Timestamp  string       `json:"timestamp"`
	TotalTests int          `json:"total_tests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Results    []TestResult `json:"results"`
}

// Summarize counts passes and failures
func Summarize(results []TestResult) Summary {
	s := Summary{
		Timestamp:  time.Now().Format(time.RFC3339),
		TotalTests: len(results),
		Results:    results,
	}
	for _, result := range results {
		if result.Status == "PASS" {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// ExportResults exports test results to JSON
func (r *BenchmarkRunner) ExportResults(results []TestResult, outputPath string) error {
	jsonData, err := json.MarshalIndent(Summarize(results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	fmt.Printf("✓ Results exported to: %s\n", outputPath)
	return nil
}
