package embedding

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/docqa/llm"
)

// Remote sends each batch to a hosted endpoint in one call. isQuery does
// not change the input text.
type Remote struct {
	client llm.Embedder
	model  string
	dim    *dimension
}

// NewRemote wraps a batching embedder. dim may be 0.
func NewRemote(client llm.Embedder, model string, dim int) *Remote {
	return &Remote{client: client, model: model, dim: newDimension(dim)}
}

func (r *Remote) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text}, isQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *Remote) EmbedBatch(ctx context.Context, texts []string, _ bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := r.client.Embed(ctx, texts)
	if err != nil {
		return nil, wrap(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := r.dim.check(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (r *Remote) Dimension() int { return r.dim.get() }
func (r *Remote) Model() string  { return r.model }
func (r *Remote) Close() error   { return nil }
