// Package embedding maps text to fixed-length vectors through one of several
// interchangeable backends.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/brunobiangulo/docqa/llm"
)

// ErrEmbedding wraps every backend failure. The original cause stays
// reachable through errors.Is/As.
var ErrEmbedding = errors.New("embedding: backend call failed")

// QueryPrefix is prepended to questions by the local single-call backend.
const QueryPrefix = "Represent this sentence for searching relevant passages: "

// Strategy names accepted by New.
const (
	StrategyRemote    = "remote"
	StrategyLocal     = "local"
	StrategyFastEmbed = "fastembed"
)

// Provider generates embeddings. isQuery is true for questions and false
// for corpus chunks; vectors from both sides must come from one Provider.
type Provider interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
	// Dimension is the vector length, or 0 while it is still unknown.
	Dimension() int
	// Model identifies the backend and model that produced the vectors.
	Model() string
	Close() error
}

// Config selects and configures a Provider.
type Config struct {
	Strategy string

	// Dimension is the expected vector length. Zero means it is learned
	// from the first response.
	Dimension int

	// LLM configures the transport for the remote and local strategies.
	LLM llm.Config

	// FastEmbed configures the in-process strategy.
	FastEmbed FastEmbedConfig
}

// New builds the Provider named by cfg.Strategy.
func New(cfg Config) (Provider, error) {
	switch cfg.Strategy {
	case StrategyRemote, "":
		p, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		return NewRemote(p, cfg.LLM.Provider+"/"+cfg.LLM.Model, cfg.Dimension), nil
	case StrategyLocal:
		llmCfg := cfg.LLM
		if llmCfg.Provider == "" {
			llmCfg.Provider = "ollama"
		}
		p, err := llm.NewProvider(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		single, ok := p.(llm.SingleEmbedder)
		if !ok {
			return nil, fmt.Errorf("embedding: provider %q has no single-text endpoint", llmCfg.Provider)
		}
		return NewLocal(single, llmCfg.Provider+"/"+llmCfg.Model, cfg.Dimension), nil
	case StrategyFastEmbed:
		f, err := NewFastEmbed(cfg.FastEmbed)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("embedding: unknown strategy %q", cfg.Strategy)
	}
}

// Probe returns the provider's dimension, embedding a short passage first
// when the dimension is not known yet.
func Probe(ctx context.Context, p Provider) (int, error) {
	if d := p.Dimension(); d > 0 {
		return d, nil
	}
	if _, err := p.Embed(ctx, "dimension probe", false); err != nil {
		return 0, err
	}
	if d := p.Dimension(); d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("%w: dimension still unknown after probe", ErrEmbedding)
}

// dimension tracks the vector length of one backend. A zero value is
// established by the first vector it sees.
type dimension struct {
	n atomic.Int64
}

func newDimension(n int) *dimension {
	d := &dimension{}
	d.n.Store(int64(n))
	return d
}

func (d *dimension) get() int { return int(d.n.Load()) }

func (d *dimension) check(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	got := int64(len(vec))
	if d.n.CompareAndSwap(0, got) {
		return nil
	}
	if want := d.n.Load(); want != got {
		return fmt.Errorf("%w: vector has %d dimensions, want %d", ErrEmbedding, got, want)
	}
	return nil
}

func wrap(err error) error {
	if err == nil || errors.Is(err, ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}
