//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the in-process ONNX backend.
type FastEmbedConfig struct {
	// Model defaults to BAAI/bge-small-en-v1.5.
	Model string
	// CacheDir holds downloaded model files. Defaults to ./local_cache.
	CacheDir string
	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var fastEmbedDims = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.AllMiniLML6V2: 384,
}

// FastEmbed runs the embedding model in process. Queries use QueryEmbed
// and passages PassageEmbed, which add the model's own prefixes.
type FastEmbed struct {
	mu    sync.RWMutex
	model *fastembed.FlagEmbedding
	name  string
	dim   *dimension
}

// NewFastEmbed loads the model, downloading it into CacheDir if needed.
func NewFastEmbed(cfg FastEmbedConfig) (*FastEmbed, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("embedding: unsupported fastembed model %q", cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: initializing fastembed: %w", err)
	}

	return &FastEmbed{
		model: flag,
		name:  "fastembed/" + cfg.Model,
		dim:   newDimension(fastEmbedDims[model]),
	}, nil
}

func (f *FastEmbed) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	if !isQuery {
		vecs, err := f.EmbedBatch(ctx, []string{text}, false)
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	vec, err := f.model.QueryEmbed(text)
	if err != nil {
		return nil, wrap(err)
	}
	if err := f.dim.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (f *FastEmbed) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if isQuery {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := f.Embed(ctx, t, true)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap(err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	vecs, err := f.model.PassageEmbed(texts, len(texts))
	if err != nil {
		return nil, wrap(err)
	}
	for _, v := range vecs {
		if err := f.dim.check(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (f *FastEmbed) Dimension() int { return f.dim.get() }
func (f *FastEmbed) Model() string  { return f.name }

// Close releases the ONNX session.
func (f *FastEmbed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.model == nil {
		return nil
	}
	err := f.model.Destroy()
	f.model = nil
	return err
}
