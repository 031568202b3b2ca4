package docqa

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. DOCQA_CHAT_MODEL.
const EnvPrefix = "DOCQA_"

// Config holds all configuration for the docqa engine.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Chat      LLMConfig       `koanf:"chat"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Chunk     ChunkConfig     `koanf:"chunk"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `koanf:"backend"`

	// Path is the full path to the SQLite database file.
	// If empty, defaults to ~/.docqa/<Name>.db
	Path string `koanf:"path"`

	// Name is the database name used when Path is empty.
	Name string `koanf:"name"`

	// Dir controls where the database is created when Path is not set:
	// "home" (default) uses ~/.docqa/, "local" the working directory.
	Dir string `koanf:"dir"`
}

// LLMConfig configures a chat endpoint.
type LLMConfig struct {
	Provider          string        `koanf:"provider"` // openai, ollama, custom
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	MaxRetries        int           `koanf:"max_retries"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
	Temperature       float64       `koanf:"temperature"`
	MaxTokens         int           `koanf:"max_tokens"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	// Strategy is remote, local or fastembed.
	Strategy          string        `koanf:"strategy"`
	Provider          string        `koanf:"provider"`
	Model             string        `koanf:"model"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	MaxRetries        int           `koanf:"max_retries"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`

	// Dimension must match the model. Zero probes the backend once.
	Dimension int `koanf:"dimension"`

	// CacheDir holds fastembed model files.
	CacheDir string `koanf:"cache_dir"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	MaxSize int `koanf:"max_size"`
}

// IngestConfig configures ingestion concurrency.
type IngestConfig struct {
	// Concurrency bounds documents processed at once.
	Concurrency int `koanf:"concurrency"`
	// EmbedConcurrency bounds in-flight embedding batches per document.
	EmbedConcurrency int `koanf:"embed_concurrency"`
	// Dir is the default directory for `docqa ingest`.
	Dir string `koanf:"dir"`
}

// RetrievalConfig configures retrieval.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	APIKey         string        `koanf:"api_key"`
	CORSOrigins    []string      `koanf:"cors_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// DefaultConfig returns a Config that talks to OpenAI and stores the
// corpus in ~/.docqa/docqa.db.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Name:    "docqa",
			Dir:     "home",
		},
		Chat: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     120 * time.Second,
			Temperature: 0.7,
			MaxTokens:   500,
		},
		Embedding: EmbeddingConfig{
			Strategy:  "remote",
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Timeout:   60 * time.Second,
			Dimension: 1536,
		},
		Chunk:     ChunkConfig{MaxSize: 1000},
		Ingest:    IngestConfig{Concurrency: 2, EmbedConcurrency: 1, Dir: "data"},
		Retrieval: RetrievalConfig{TopK: 3},
		Server: ServerConfig{
			Addr:           ":3000",
			RequestTimeout: 2 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig builds a Config from defaults, the optional YAML file at path
// and DOCQA_SECTION_FIELD environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	// DOCQA_CHAT_MAX_RETRIES -> chat.max_retries: split on the first
	// underscore only so field names keep theirs.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(key, "_", 2)
		if len(parts) == 1 {
			return key
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return cfg, fmt.Errorf("%w: loading environment: %v", ErrInvalidConfig, err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvFallbacks fills credentials and hosts from the conventional
// variables of each backend.
func (c *Config) applyEnvFallbacks() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Chat.APIKey == "" && c.Chat.Provider == "openai" {
			c.Chat.APIKey = key
		}
		if c.Embedding.APIKey == "" && c.Embedding.Provider == "openai" {
			c.Embedding.APIKey = key
		}
	}
	if host := os.Getenv("OLLAMA_BASE_URL"); host != "" {
		if c.Chat.BaseURL == "" && c.Chat.Provider == "ollama" {
			c.Chat.BaseURL = host
		}
		if c.Embedding.BaseURL == "" && c.Embedding.Provider == "ollama" {
			c.Embedding.BaseURL = host
		}
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return invalid("store.backend must be sqlite or memory, got %q", c.Store.Backend)
	}
	switch c.Chat.Provider {
	case "openai", "ollama", "custom":
	default:
		return invalid("chat.provider must be openai, ollama or custom, got %q", c.Chat.Provider)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return invalid("chat.temperature must be within [0, 2], got %v", c.Chat.Temperature)
	}
	if c.Chat.MaxTokens < 0 {
		return invalid("chat.max_tokens must not be negative")
	}
	switch c.Embedding.Strategy {
	case "remote", "local":
		if c.Embedding.Provider == "" {
			return invalid("embedding.provider is required for the %s strategy", c.Embedding.Strategy)
		}
	case "fastembed":
	default:
		return invalid("embedding.strategy must be remote, local or fastembed, got %q", c.Embedding.Strategy)
	}
	if c.Embedding.Dimension < 0 {
		return invalid("embedding.dimension must not be negative")
	}
	if c.Chunk.MaxSize <= 0 {
		return invalid("chunk.max_size must be positive, got %d", c.Chunk.MaxSize)
	}
	if c.Ingest.Concurrency < 1 || c.Ingest.EmbedConcurrency < 1 {
		return invalid("ingest concurrency values must be at least 1")
	}
	if c.Retrieval.TopK <= 0 {
		return invalid("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}

	name := c.Store.Name
	if name == "" {
		name = "docqa"
	}

	switch c.Store.Dir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".docqa", name+".db")
	}
}
