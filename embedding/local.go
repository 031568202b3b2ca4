package embedding

import (
	"context"

	"github.com/brunobiangulo/docqa/llm"
)

// Local issues one call per text. Questions get QueryPrefix so they land
// near the passages that answer them.
type Local struct {
	client llm.SingleEmbedder
	model  string
	dim    *dimension
}

// NewLocal wraps a single-text embedder. dim may be 0.
func NewLocal(client llm.SingleEmbedder, model string, dim int) *Local {
	return &Local{client: client, model: model, dim: newDimension(dim)}
}

func (l *Local) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	if isQuery {
		text = QueryPrefix + text
	}
	vec, err := l.client.EmbedOne(ctx, text)
	if err != nil {
		return nil, wrap(err)
	}
	if err := l.dim.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially and stops at the first failure.
func (l *Local) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, wrap(err)
		}
		vec, err := l.Embed(ctx, t, isQuery)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (l *Local) Dimension() int { return l.dim.get() }
func (l *Local) Model() string  { return l.model }
func (l *Local) Close() error   { return nil }
