// Package llm provides options for the embedding and chat providers.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docrag/pkg/options"
)

// ChatAPIKeyEnv is read when chat.api-key is not set.
const ChatAPIKeyEnv = "CHAT_WITH_DOCUMENT_LLM_KEY"

var (
	_ options.IOptions = (*EmbeddingOptions)(nil)
	_ options.IOptions = (*ChatOptions)(nil)
)

// EmbeddingOptions configures the embedding provider and the batching of
// ingestion requests.
type EmbeddingOptions struct {
	// Provider is a name registered in pkg/llm (openai, ollama, huggingface).
	Provider string `json:"provider" mapstructure:"provider"`

	BaseURL string `json:"base-url" mapstructure:"base-url"`
	APIKey  string `json:"-" mapstructure:"api-key"`
	Model   string `json:"model" mapstructure:"model"`

	// Dim is the vector dimension the collection is created with.
	Dim int `json:"dim" mapstructure:"dim"`

	BatchSize   int           `json:"batch-size" mapstructure:"batch-size"`
	BatchPause  time.Duration `json:"batch-pause" mapstructure:"batch-pause"`
	Concurrency int           `json:"concurrency" mapstructure:"concurrency"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewEmbeddingOptions creates embedding options with defaults.
func NewEmbeddingOptions() *EmbeddingOptions {
	return &EmbeddingOptions{
		Provider:    "ollama",
		BaseURL:     "http://localhost:11434",
		Model:       "nomic-embed-text",
		Dim:         768,
		BatchSize:   10,
		BatchPause:  100 * time.Millisecond,
		Concurrency: 1,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
	}
}

// AddFlags adds flags to the flagset.
func (o *EmbeddingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Embedding provider (openai, ollama, huggingface).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Embedding API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Embedding model name.")
	fs.IntVar(&o.Dim, p+"dim", o.Dim, "Embedding vector dimension.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Chunks embedded per request during ingestion.")
	fs.DurationVar(&o.BatchPause, p+"batch-pause", o.BatchPause, "Pause between embedding batches.")
	fs.IntVar(&o.Concurrency, p+"concurrency", o.Concurrency, "Embedding batches in flight; 1 is sequential.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Per-request embedding timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries for 5xx embedding responses.")
}

// Validate validates the options.
func (o *EmbeddingOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("embedding provider is required"))
	}
	if o.Dim <= 0 {
		errs = append(errs, fmt.Errorf("embedding dim must be positive, got %d", o.Dim))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding batch-size must be positive, got %d", o.BatchSize))
	}
	if o.BatchPause < 0 {
		errs = append(errs, fmt.Errorf("embedding batch-pause must not be negative"))
	}
	if o.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("embedding concurrency must be at least 1, got %d", o.Concurrency))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding timeout must be positive"))
	}
	return errs
}

// ToConfigMap returns the map consumed by llm.NewEmbeddingProvider.
func (o *EmbeddingOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// ChatOptions configures the chat provider used for answers and the agent.
type ChatOptions struct {
	Provider string `json:"provider" mapstructure:"provider"`
	BaseURL  string `json:"base-url" mapstructure:"base-url"`
	APIKey   string `json:"-" mapstructure:"api-key"`
	Model    string `json:"model" mapstructure:"model"`

	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max-tokens" mapstructure:"max-tokens"`

	// Title is sent as the X-Title attribution header.
	Title string `json:"title" mapstructure:"title"`

	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewChatOptions creates chat options with defaults.
func NewChatOptions() *ChatOptions {
	return &ChatOptions{
		Provider:    "openai",
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "anthropic/claude-3.5-sonnet",
		Temperature: 0.7,
		MaxTokens:   1000,
		Title:       "Chat With Document",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
	}
}

// AddFlags adds flags to the flagset.
func (o *ChatOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "chat."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Chat provider (openai, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Chat API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Chat API key; falls back to $"+ChatAPIKeyEnv+".")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model used for non-agentic answers.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature for answers.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum tokens per answer.")
	fs.StringVar(&o.Title, p+"title", o.Title, "Application title sent to the chat API.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Per-request chat timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries for 5xx chat responses.")
}

// Complete fills the API key from the environment.
func (o *ChatOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(ChatAPIKeyEnv)
	}
	return nil
}

// Validate validates the options. A missing API key is reported by the
// commands that call the model, not here.
func (o *ChatOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("chat provider is required"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat temperature must be in [0, 2], got %v", o.Temperature))
	}
	if o.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chat max-tokens must be positive, got %d", o.MaxTokens))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("chat timeout must be positive"))
	}
	return errs
}

// ToConfigMap returns the map consumed by llm.NewChatProvider.
func (o *ChatOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"chat_model":  o.Model,
		"title":       o.Title,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}
