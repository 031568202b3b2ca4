package llm

import (
	"context"
	"fmt"
	"time"
)

// Chatter sends chat completion requests.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Embedder generates embeddings for a batch of texts in one call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SingleEmbedder generates the embedding of one text per call. Backends
// without native batching implement it.
type SingleEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Provider is the interface for LLM interactions.
type Provider interface {
	Chatter
	Embedder
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider"` // openai, ollama, custom
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`

	// MaxRetries bounds transport-level retries of transient failures
	// (429, 502, 503, 504, network errors). Zero disables retries.
	MaxRetries int `json:"max_retries"`

	// RequestsPerSecond paces outgoing requests. Zero means unlimited.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Timeout for a single HTTP request. Defaults to 120s.
	Timeout time.Duration `json:"timeout"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
