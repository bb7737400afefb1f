// ABOUTME: Builds the configured generator, embedder and image describer
// ABOUTME: Selects OpenAI, Anthropic or Gemini implementations from config
package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

// Generator produces an answer for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ImageDescriber describes an image in text
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte, filename string) (string, error)
}

// Providers bundles the model clients selected by configuration
type Providers struct {
	Generator      Generator
	Embedder       Embedder
	Vision         ImageDescriber
	EmbeddingModel string

	closers []func() error
}

// Close releases any provider connections
func (p *Providers) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewProviders builds the clients named by cfg. Image description needs an
// OpenAI key and is left nil without one.
func NewProviders(ctx context.Context, cfg *config.Config) (*Providers, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	p := &Providers{}

	var openaiClient *OpenAIClient
	if cfg.OpenAIKey != "" {
		client, err := NewOpenAIClientWithConfig(&ClientConfig{
			APIKey:         cfg.OpenAIKey,
			ChatModel:      cfg.ChatModel,
			VisionModel:    cfg.VisionModel,
			EmbeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
			Temperature:    float32(cfg.Temperature),
			MaxTokens:      cfg.MaxTokens,
			MaxRetries:     cfg.MaxRetries,
			RetryDelay:     cfg.RetryDelay,
			RequestTimeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		openaiClient = client
		p.Vision = client
	} else {
		log.Printf("[LLM] OPENAI_API_KEY not set: image attachments are disabled")
	}

	var googleClient *GoogleClient
	if cfg.LLMProvider == config.ProviderGoogle || cfg.EmbeddingProvider == config.ProviderGoogle {
		client, err := NewGoogleClient(ctx, GoogleConfig{
			APIKey:         cfg.GoogleKey,
			Model:          modelFor(cfg, config.ProviderGoogle),
			EmbeddingModel: embeddingModelFor(cfg, config.ProviderGoogle),
			Temperature:    float32(cfg.Temperature),
			MaxTokens:      int32(cfg.MaxTokens),
			Retry: util.RetryPolicy{
				MaxRetries:     cfg.MaxRetries,
				BaseDelay:      cfg.RetryDelay,
				AttemptTimeout: cfg.RequestTimeout,
			},
		})
		if err != nil {
			return nil, err
		}
		googleClient = client
		p.closers = append(p.closers, client.Close)
	}

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		p.Generator = openaiClient
	case config.ProviderAnthropic:
		gen, err := NewAnthropicGenerator(AnthropicConfig{
			APIKey:      cfg.AnthropicKey,
			Model:       modelFor(cfg, config.ProviderAnthropic),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		p.Generator = gen
	case config.ProviderGoogle:
		p.Generator = googleClient
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}

	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		p.Embedder = openaiClient
		p.EmbeddingModel = openaiClient.EmbeddingModel()
	case config.ProviderGoogle:
		p.Embedder = googleClient
		p.EmbeddingModel = googleClient.EmbeddingModel()
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.EmbeddingProvider)
	}

	log.Printf("[LLM] Generator: %s (%s), embeddings: %s (%s)", cfg.LLMProvider, modelFor(cfg, cfg.LLMProvider), cfg.EmbeddingProvider, p.EmbeddingModel)
	return p, nil
}

// modelFor keeps the configured chat model unless it is the OpenAI default
// and another provider was selected
func modelFor(cfg *config.Config, provider string) string {
	if cfg.ChatModel != DefaultChatModel || provider == config.ProviderOpenAI {
		return cfg.ChatModel
	}
	switch provider {
	case config.ProviderAnthropic:
		return DefaultAnthropicModel
	case config.ProviderGoogle:
		return DefaultGeminiModel
	}
	return cfg.ChatModel
}

func embeddingModelFor(cfg *config.Config, provider string) string {
	if provider == config.ProviderGoogle && cfg.EmbeddingModel == string(DefaultEmbeddingModel) {
		return DefaultGeminiEmbeddingModel
	}
	return cfg.EmbeddingModel
}
