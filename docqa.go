// Package docqa answers questions over a corpus of ingested documents by
// retrieving the nearest chunks and grounding a language model on them.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/docqa/answer"
	"github.com/brunobiangulo/docqa/chunker"
	"github.com/brunobiangulo/docqa/embedding"
	"github.com/brunobiangulo/docqa/llm"
	"github.com/brunobiangulo/docqa/parser"
	"github.com/brunobiangulo/docqa/retrieval"
	"github.com/brunobiangulo/docqa/store"
)

// Engine is the main entry point for the QA pipeline.
type Engine interface {
	// Ingest extracts, chunks, embeds and stores one document. A document
	// whose filename is already stored is skipped.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error)

	// IngestAll ingests many documents concurrently. A failing document
	// does not stop the others.
	IngestAll(ctx context.Context, paths []string, opts ...IngestOption) (*IngestSummary, error)

	// IngestDir ingests every supported file directly inside dir.
	IngestDir(ctx context.Context, dir string, opts ...IngestOption) (*IngestSummary, error)

	// Ask answers a question from the stored chunks and records it.
	Ask(ctx context.Context, question string, opts ...AskOption) (*Answer, error)

	// History returns recorded questions, most recent first.
	History(ctx context.Context, limit int) ([]store.QuestionRecord, error)

	ListDocuments(ctx context.Context) ([]store.Document, error)
	GetDocument(ctx context.Context, id string) (*store.Document, error)

	// DeleteDocument removes a document with its chunks and vectors.
	DeleteDocument(ctx context.Context, id string) error

	Stats(ctx context.Context) (*store.Stats, error)

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer is the result of Ask.
type Answer struct {
	RecordID     string            `json:"id"`
	Question     string            `json:"question"`
	Text         string            `json:"answer"`
	Sources      []store.SourceRef `json:"sources"`
	Cited        []int             `json:"cited,omitempty"`
	Grounded     bool              `json:"grounded"`
	ModelUsed    string            `json:"model_used,omitempty"`
	TotalTokens  int               `json:"total_tokens"`
	RetrievalMs  int64             `json:"retrieval_ms"`
	GenerationMs int64             `json:"generation_ms"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AskOption configures a single question.
type AskOption func(*askOptions)

type askOptions struct {
	topK int
}

// WithTopK sets the number of chunks retrieved for this question.
func WithTopK(n int) AskOption {
	return func(o *askOptions) { o.topK = n }
}

// Components are the collaborators of an Engine. Store, Embedder and Chat
// are required.
type Components struct {
	Store    store.Backend
	Embedder embedding.Provider
	Chat     llm.Chatter
	// Parsers defaults to parser.NewRegistry().
	Parsers *parser.Registry
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     store.Backend
	embedder  embedding.Provider
	parsers   *parser.Registry
	chunkr    *chunker.Chunker
	retriever *retrieval.Retriever
	generator *answer.Generator
}

// New creates an engine from configuration: it builds the embedding
// backend, opens the store and connects the chat provider.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The remote defaults mean nothing to the other strategies: fastembed
	// picks its own model and the rest learn the dimension from the
	// first vector.
	defaults := DefaultConfig().Embedding
	fastModel := cfg.Embedding.Model
	if fastModel == defaults.Model {
		fastModel = ""
	}
	dim := cfg.Embedding.Dimension
	if cfg.Embedding.Strategy != embedding.StrategyRemote && dim == defaults.Dimension {
		dim = 0
	}

	emb, err := embedding.New(embedding.Config{
		Strategy:  cfg.Embedding.Strategy,
		Dimension: dim,
		LLM: llm.Config{
			Provider:          cfg.Embedding.Provider,
			Model:             cfg.Embedding.Model,
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			MaxRetries:        cfg.Embedding.MaxRetries,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Timeout:           cfg.Embedding.Timeout,
		},
		FastEmbed: embedding.FastEmbedConfig{
			Model:    fastModel,
			CacheDir: cfg.Embedding.CacheDir,
		},
	})
	if err != nil {
		return nil, fail(ErrInvalidConfig, "new", err)
	}

	s, err := openStore(cfg, emb)
	if err != nil {
		emb.Close()
		return nil, err
	}

	chat, err := llm.NewProvider(llm.Config{
		Provider:          cfg.Chat.Provider,
		Model:             cfg.Chat.Model,
		BaseURL:           cfg.Chat.BaseURL,
		APIKey:            cfg.Chat.APIKey,
		MaxRetries:        cfg.Chat.MaxRetries,
		RequestsPerSecond: cfg.Chat.RequestsPerSecond,
		Timeout:           cfg.Chat.Timeout,
	})
	if err != nil {
		s.Close()
		emb.Close()
		return nil, fail(ErrInvalidConfig, "new", fmt.Errorf("creating chat provider: %w", err))
	}

	return Assemble(cfg, Components{Store: s, Embedder: emb, Chat: chat})
}

// openStore opens the configured backend. A SQLite corpus needs the
// embedding dimension up front, so an unknown one is probed.
func openStore(cfg Config, emb embedding.Provider) (store.Backend, error) {
	if cfg.Store.Backend == "memory" {
		m, err := store.NewMemory(emb.Dimension())
		if err != nil {
			return nil, fail(ErrStore, "open", err)
		}
		return m, nil
	}

	dim := emb.Dimension()
	if dim == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		d, err := embedding.Probe(ctx, emb)
		if err != nil {
			return nil, fail(ErrEmbedding, "open", err)
		}
		dim = d
	}

	dbPath := cfg.resolveDBPath()
	s, err := store.OpenSQLite(dbPath, dim, emb.Model())
	if err != nil {
		return nil, fail(ErrStore, "open", fmt.Errorf("opening %s: %w", dbPath, err))
	}
	slog.Info("store: opened", "path", dbPath, "dim", dim, "model", emb.Model())
	return s, nil
}

// Assemble builds an engine from ready collaborators.
func Assemble(cfg Config, c Components) (Engine, error) {
	if c.Store == nil || c.Embedder == nil || c.Chat == nil {
		return nil, fail(ErrInvalidConfig, "assemble", errors.New("store, embedder and chat are required"))
	}
	if d := c.Store.Dimension(); d != 0 && c.Embedder.Dimension() != 0 && d != c.Embedder.Dimension() {
		return nil, fail(ErrStore, "assemble", fmt.Errorf("%w: store has %d, embedder %d",
			store.ErrDimensionMismatch, d, c.Embedder.Dimension()))
	}

	parsers := c.Parsers
	if parsers == nil {
		parsers = parser.NewRegistry()
	}
	if cfg.Ingest.Concurrency < 1 {
		cfg.Ingest.Concurrency = 1
	}
	if cfg.Ingest.EmbedConcurrency < 1 {
		cfg.Ingest.EmbedConcurrency = 1
	}

	return &engine{
		cfg:       cfg,
		store:     c.Store,
		embedder:  c.Embedder,
		parsers:   parsers,
		chunkr:    chunker.New(chunker.Config{MaxChunkSize: cfg.Chunk.MaxSize}),
		retriever: retrieval.New(c.Embedder, c.Store, retrieval.Config{TopK: cfg.Retrieval.TopK}),
		generator: answer.New(c.Chat, answer.Config{
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}),
	}, nil
}

func (e *engine) History(ctx context.Context, limit int) ([]store.QuestionRecord, error) {
	recs, err := e.store.Recent(ctx, limit)
	if err != nil {
		return nil, fail(ErrStore, "history", err)
	}
	return recs, nil
}

func (e *engine) ListDocuments(ctx context.Context) ([]store.Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fail(ErrStore, "list_documents", err)
	}
	return docs, nil
}

func (e *engine) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	doc, err := e.store.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fail(ErrDocumentNotFound, "get_document", err)
	}
	if err != nil {
		return nil, fail(ErrStore, "get_document", err)
	}
	return doc, nil
}

func (e *engine) DeleteDocument(ctx context.Context, id string) error {
	err := e.store.DeleteDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ErrDocumentNotFound, "delete_document", err)
	}
	if err != nil {
		return fail(ErrStore, "delete_document", err)
	}
	slog.Info("document deleted", "doc_id", id)
	return nil
}

func (e *engine) Stats(ctx context.Context) (*store.Stats, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fail(ErrStore, "stats", err)
	}
	return stats, nil
}

func (e *engine) Close() error {
	return errors.Join(e.store.Close(), e.embedder.Close())
}
