// ABOUTME: Centralized configuration for the ragchat server and CLI
// ABOUTME: Loads an optional YAML file, then environment variables, with validation and defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted for generation and embeddings
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Config holds all configuration for ragchat. API keys are only read from
// the environment and never from the config file.
type Config struct {
	// Provider credentials
	OpenAIKey    string `yaml:"-"`
	AnthropicKey string `yaml:"-"`
	GoogleKey    string `yaml:"-"`

	// Model settings
	LLMProvider       string  `yaml:"llm_provider"`
	EmbeddingProvider string  `yaml:"embedding_provider"`
	ChatModel         string  `yaml:"chat_model"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	VisionModel       string  `yaml:"vision_model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`

	// Retrieval settings
	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	TopK               int     `yaml:"top_k"`
	MMRLambda          float64 `yaml:"mmr_lambda"`
	MaxPromptTokens    int     `yaml:"max_prompt_tokens"`
	MaxAttachmentChars int     `yaml:"max_attachment_chars"`

	// Upstream call settings
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EmbedRate      float64       `yaml:"embed_rate"`

	// Paths and serving
	DataDir    string `yaml:"data_dir"`
	IndexDir   string `yaml:"index_dir"`
	HTTPAddr   string `yaml:"http_addr"`
	WatchIndex bool   `yaml:"watch_index"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LLMProvider:        ProviderOpenAI,
		EmbeddingProvider:  ProviderOpenAI,
		ChatModel:          "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		VisionModel:        "gpt-4o-mini",
		Temperature:        0.1,
		MaxTokens:          1024,
		ChunkSize:          500,
		ChunkOverlap:       50,
		TopK:               6,
		MMRLambda:          0.25,
		MaxPromptTokens:    12000,
		MaxAttachmentChars: 8000,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
		RequestTimeout:     30 * time.Second,
		EmbedRate:          5,
		HTTPAddr:           ":8000",
		WatchIndex:         true,
	}
}

// Load reads configuration from the file named by RAGCHAT_CONFIG (if any)
// and the environment
func Load() (*Config, error) {
	return LoadFile(os.Getenv("RAGCHAT_CONFIG"))
}

// LoadFile reads configuration from a YAML file, then applies environment
// overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	c.GoogleKey = os.Getenv("GOOGLE_API_KEY")

	c.LLMProvider = strings.ToLower(getEnv("RAGCHAT_LLM_PROVIDER", c.LLMProvider))
	c.EmbeddingProvider = strings.ToLower(getEnv("RAGCHAT_EMBEDDING_PROVIDER", c.EmbeddingProvider))
	c.ChatModel = getEnv("RAGCHAT_CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("RAGCHAT_EMBEDDING_MODEL", c.EmbeddingModel)
	c.VisionModel = getEnv("RAGCHAT_VISION_MODEL", c.VisionModel)
	c.Temperature = getEnvFloat("RAGCHAT_TEMPERATURE", c.Temperature)
	c.MaxTokens = getEnvInt("RAGCHAT_MAX_TOKENS", c.MaxTokens)

	c.ChunkSize = getEnvInt("RAGCHAT_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("RAGCHAT_CHUNK_OVERLAP", c.ChunkOverlap)
	c.TopK = getEnvInt("RAGCHAT_TOP_K", c.TopK)
	c.MMRLambda = getEnvFloat("RAGCHAT_MMR_LAMBDA", c.MMRLambda)
	c.MaxPromptTokens = getEnvInt("RAGCHAT_MAX_PROMPT_TOKENS", c.MaxPromptTokens)
	c.MaxAttachmentChars = getEnvInt("RAGCHAT_MAX_ATTACHMENT_CHARS", c.MaxAttachmentChars)

	c.MaxRetries = getEnvInt("RAGCHAT_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getEnvDuration("RAGCHAT_RETRY_DELAY", c.RetryDelay)
	c.RequestTimeout = getEnvDuration("RAGCHAT_REQUEST_TIMEOUT", c.RequestTimeout)
	c.EmbedRate = getEnvFloat("RAGCHAT_EMBED_RATE", c.EmbedRate)

	c.DataDir = getEnv("RAGCHAT_DATA_DIR", c.DataDir)
	c.IndexDir = getEnv("RAGCHAT_INDEX_DIR", c.IndexDir)
	c.HTTPAddr = getEnv("RAGCHAT_HTTP_ADDR", c.HTTPAddr)
	c.WatchIndex = getEnvBool("RAGCHAT_WATCH_INDEX", c.WatchIndex)
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("RAGCHAT_LLM_PROVIDER must be openai, anthropic or google, got %q", c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderGoogle:
	default:
		return fmt.Errorf("RAGCHAT_EMBEDDING_PROVIDER must be openai or google, got %q", c.EmbeddingProvider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("RAGCHAT_TEMPERATURE must be 0-2, got %f", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("RAGCHAT_MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("RAGCHAT_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("RAGCHAT_CHUNK_OVERLAP must be 0 to chunk size - 1, got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("RAGCHAT_TOP_K must be positive, got %d", c.TopK)
	}
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		return fmt.Errorf("RAGCHAT_MMR_LAMBDA must be 0-1, got %f", c.MMRLambda)
	}
	if c.MaxPromptTokens <= 0 {
		return fmt.Errorf("RAGCHAT_MAX_PROMPT_TOKENS must be positive, got %d", c.MaxPromptTokens)
	}
	if c.MaxAttachmentChars <= 0 {
		return fmt.Errorf("RAGCHAT_MAX_ATTACHMENT_CHARS must be positive, got %d", c.MaxAttachmentChars)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("RAGCHAT_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RAGCHAT_RETRY_DELAY must not be negative, got %v", c.RetryDelay)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("RAGCHAT_REQUEST_TIMEOUT must not be negative, got %v", c.RequestTimeout)
	}
	if c.EmbedRate < 0 {
		return fmt.Errorf("RAGCHAT_EMBED_RATE must not be negative, got %f", c.EmbedRate)
	}
	return nil
}

// RequireCredentials checks that the selected providers have API keys.
// Image description uses OpenAI and is disabled rather than required when
// OPENAI_API_KEY is missing.
func (c *Config) RequireCredentials() error {
	keys := map[string]string{
		ProviderOpenAI:    c.OpenAIKey,
		ProviderAnthropic: c.AnthropicKey,
		ProviderGoogle:    c.GoogleKey,
	}
	envNames := map[string]string{
		ProviderOpenAI:    "OPENAI_API_KEY",
		ProviderAnthropic: "ANTHROPIC_API_KEY",
		ProviderGoogle:    "GOOGLE_API_KEY",
	}

	var missing []string
	for _, p := range []string{c.LLMProvider, c.EmbeddingProvider} {
		if keys[p] == "" && !contains(missing, envNames[p]) {
			missing = append(missing, envNames[p])
		}
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
