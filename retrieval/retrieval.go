// Package retrieval finds the stored chunks nearest to a question.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/docqa/embedding"
	"github.com/brunobiangulo/docqa/store"
)

// DefaultTopK is the number of chunks retrieved when none is requested.
const DefaultTopK = 3

// Config holds retriever configuration.
type Config struct {
	TopK int
}

// Result is the outcome of one retrieval. Vector is the question
// embedding, kept for the QA history.
type Result struct {
	Question  string        `json:"question"`
	Vector    []float32     `json:"-"`
	Chunks    []store.Chunk `json:"chunks"`
	TopK      int           `json:"top_k"`
	ElapsedMs int64         `json:"elapsed_ms"`
}

// Contents returns the chunk texts in rank order.
func (r *Result) Contents() []string {
	out := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Content
	}
	return out
}

// Sources returns the snapshot references of the retrieved chunks.
func (r *Result) Sources() []store.SourceRef {
	out := make([]store.SourceRef, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = store.SourceRef{Content: c.Content, DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex}
	}
	return out
}

// Retriever embeds questions and searches the vector store.
type Retriever struct {
	embedder embedding.Provider
	vectors  store.VectorStore
	cfg      Config
}

// New creates a retriever. The embedder must be the one that produced the
// stored vectors.
func New(embedder embedding.Provider, vectors store.VectorStore, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{embedder: embedder, vectors: vectors, cfg: cfg}
}

// TopK returns the configured default.
func (r *Retriever) TopK() int { return r.cfg.TopK }

// Retrieve embeds the question as a query and returns the topK nearest
// chunks. topK <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (*Result, error) {
	start := time.Now()
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	vec, err := r.embedder.Embed(ctx, question, true)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	chunks, err := r.vectors.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	res := &Result{
		Question:  question,
		Vector:    vec,
		Chunks:    chunks,
		TopK:      topK,
		ElapsedMs: time.Since(start).Milliseconds(),
	}

	slog.Debug("retrieval: search complete",
		"top_k", topK,
		"results", len(chunks),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}
