// ABOUTME: Google Gemini client for generation and embeddings
// ABOUTME: Wraps generative-ai-go; embeddings are batched through BatchEmbedContents
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/harper/ragchat/internal/util"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiModel is used when no chat model is configured
	DefaultGeminiModel = "gemini-1.5-flash"
	// DefaultGeminiEmbeddingModel is used when no embedding model is configured
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

// GoogleConfig holds configuration for the Gemini client
type GoogleConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int32
	Retry          util.RetryPolicy
}

// GoogleClient answers prompts and embeds text with Gemini models
type GoogleClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int32
	retry          util.RetryPolicy
}

// NewGoogleClient creates a Gemini client. Close releases its connection.
func NewGoogleClient(ctx context.Context, config GoogleConfig) (*GoogleClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultGeminiEmbeddingModel
	}
	if config.Retry.Retryable == nil {
		config.Retry.Retryable = IsTransient
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GoogleClient{
		client:         client,
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		temperature:    config.Temperature,
		maxTokens:      config.MaxTokens,
		retry:          config.Retry,
	}, nil
}

// Close releases the underlying client
func (c *GoogleClient) Close() error {
	return c.client.Close()
}

// EmbeddingModel returns the embedding model name
func (c *GoogleClient) EmbeddingModel() string {
	return c.embeddingModel
}

// Generate sends the prompt as a single request
func (c *GoogleClient) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Google")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Embed generates an embedding vector for text
func (c *GoogleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order
func (c *GoogleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := c.client.EmbeddingModel(c.embeddingModel)

	var vectors [][]float32
	err := c.retry.Do(ctx, "embedding", func(ctx context.Context) error {
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) != len(texts) {
			return errors.New("embedding count does not match input count")
		}

		out := make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return fmt.Errorf("empty embedding for input %d", i)
			}
			out[i] = e.Values
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
