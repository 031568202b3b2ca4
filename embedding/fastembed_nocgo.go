//go:build !cgo

package embedding

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned by binaries built without cgo.
var ErrFastEmbedUnavailable = errors.New("embedding: fastembed requires a cgo build")

// FastEmbedConfig configures the in-process ONNX backend.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbed is a stub for builds without cgo.
type FastEmbed struct{}

func NewFastEmbed(_ FastEmbedConfig) (*FastEmbed, error) {
	return nil, ErrFastEmbedUnavailable
}

func (f *FastEmbed) Embed(_ context.Context, _ string, _ bool) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (f *FastEmbed) EmbedBatch(_ context.Context, _ []string, _ bool) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (f *FastEmbed) Dimension() int { return 0 }
func (f *FastEmbed) Model() string  { return "" }
func (f *FastEmbed) Close() error   { return nil }
