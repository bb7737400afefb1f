// ABOUTME: OpenAI client for embeddings, chat generation and image description
// ABOUTME: Uses text-embedding-3-small for embeddings and gpt-4o-mini for chat and vision (configurable)
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
)

const describeImagePrompt = "Describe this image in detail. Include any visible text, labels, diagrams, code or data so the description can answer questions about it."

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	VisionModel    string
	EmbeddingModel openai.EmbeddingModel
	Temperature    float32
	MaxTokens      int
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		ChatModel:      DefaultChatModel,
		VisionModel:    DefaultChatModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    0.1,
		MaxTokens:      1024,
		MaxRetries:     3,
		RetryDelay:     time.Second * 2,
		RequestTimeout: time.Second * 30,
	}
}

// OpenAIClient wraps the OpenAI API client. Embedding and vision calls retry
// transient failures; Generate is a single attempt so callers own its retries.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	visionModel    string
	embeddingModel openai.EmbeddingModel
	temperature    float32
	maxTokens      int
	retry          util.RetryPolicy
}

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	visionModel := config.VisionModel
	if visionModel == "" {
		visionModel = config.ChatModel
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      config.ChatModel,
		visionModel:    visionModel,
		embeddingModel: config.EmbeddingModel,
		temperature:    config.Temperature,
		maxTokens:      config.MaxTokens,
		retry: util.RetryPolicy{
			MaxRetries:     config.MaxRetries,
			BaseDelay:      config.RetryDelay,
			AttemptTimeout: config.RequestTimeout,
			Retryable:      IsTransient,
		},
	}, nil
}

// EmbeddingModel returns the embedding model name
func (c *OpenAIClient) EmbeddingModel() string {
	return string(c.embeddingModel)
}

// Embed generates an embedding vector for text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := c.retry.Do(ctx, "embedding", func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: c.embeddingModel,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
		}

		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		out := make([][]float32, len(data))
		for i, d := range data {
			out[i] = d.Embedding
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Generate sends the composed prompt as a single user message
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// DescribeImage asks the vision model for a description of the image
func (c *OpenAIClient) DescribeImage(ctx context.Context, image []byte, filename string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	dataURL := "data:" + imageMIMEType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	prompt := describeImagePrompt
	if filename != "" {
		prompt += " The file is named " + filename + "."
	}

	var description string
	err := c.retry.Do(ctx, "describe image", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.visionModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: prompt},
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						}},
					},
				},
			},
			MaxTokens: c.maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return errors.New("no image description returned")
		}
		description = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return description, nil
}

// imageMIMEType sniffs the image type, defaulting to PNG
func imageMIMEType(image []byte) string {
	mime := http.DetectContentType(image)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/png"
}
