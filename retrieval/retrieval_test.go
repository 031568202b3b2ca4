package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/docqa/embedding"
	"github.com/brunobiangulo/docqa/store"
)

// axisEmbedder maps known texts to fixed vectors and records isQuery.
type axisEmbedder struct {
	vectors map[string][]float32
	queries []bool
	err     error
}

func (a *axisEmbedder) Embed(_ context.Context, text string, isQuery bool) ([]float32, error) {
	a.queries = append(a.queries, isQuery)
	if a.err != nil {
		return nil, a.err
	}
	if v, ok := a.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (a *axisEmbedder) EmbedBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := a.Embed(ctx, t, isQuery)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (a *axisEmbedder) Dimension() int { return 4 }
func (a *axisEmbedder) Model() string  { return "axis" }
func (a *axisEmbedder) Close() error   { return nil }

var _ embedding.Provider = (*axisEmbedder)(nil)

func seed(t *testing.T, contents map[string][]float32) *store.Memory {
	t.Helper()
	m, err := store.NewMemory(4)
	require.NoError(t, err)
	ctx := context.Background()
	doc, _, err := m.CreateDocument(ctx, "seed.txt", "/seed.txt")
	require.NoError(t, err)
	i := 0
	for content, vec := range contents {
		_, err := m.UpsertChunk(ctx, doc.ID, content, vec, i)
		require.NoError(t, err)
		i++
	}
	return m
}

func TestRetrieveNearestFirst(t *testing.T) {
	m := seed(t, map[string][]float32{
		"cats purr.":   {1, 0, 0, 0},
		"dogs bark.":   {0, 1, 0, 0},
		"birds sing.":  {0, 0, 1, 0},
		"kittens mew.": {0.9, 0.1, 0, 0},
		"wolves howl.": {0.1, 0.9, 0, 0},
	})
	emb := &axisEmbedder{vectors: map[string][]float32{"what do cats do?": {1, 0.05, 0, 0}}}
	r := New(emb, m, Config{})

	res, err := r.Retrieve(context.Background(), "what do cats do?", 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultTopK, res.TopK)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, "cats purr.", res.Chunks[0].Content)
	assert.Equal(t, "kittens mew.", res.Chunks[1].Content)
	for i := 1; i < len(res.Chunks); i++ {
		assert.LessOrEqual(t, res.Chunks[i-1].Distance, res.Chunks[i].Distance)
	}
	assert.Equal(t, []float32{1, 0.05, 0, 0}, res.Vector)
	assert.Equal(t, []bool{true}, emb.queries, "questions are embedded as queries")

	assert.Equal(t, res.Chunks[0].Content, res.Contents()[0])
	src := res.Sources()
	require.Len(t, src, 3)
	assert.Equal(t, res.Chunks[0].DocumentID, src[0].DocumentID)
	assert.Equal(t, res.Chunks[0].ChunkIndex, src[0].ChunkIndex)
}

func TestRetrieveExplicitTopK(t *testing.T) {
	m := seed(t, map[string][]float32{
		"a.": {1, 0, 0, 0},
		"b.": {0, 1, 0, 0},
	})
	r := New(&axisEmbedder{}, m, Config{TopK: 5})

	res, err := r.Retrieve(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 1)

	res, err = r.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2, "fewer chunks than topK returns them all")
}

func TestRetrieveEmptyStore(t *testing.T) {
	m, err := store.NewMemory(4)
	require.NoError(t, err)
	r := New(&axisEmbedder{}, m, Config{})

	res, err := r.Retrieve(context.Background(), "what is x?", 3)
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.Sources())
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	m, err := store.NewMemory(4)
	require.NoError(t, err)
	cause := errors.New("backend down")
	r := New(&axisEmbedder{err: cause}, m, Config{})

	_, err = r.Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestRetrieveDimensionMismatch(t *testing.T) {
	m := seed(t, map[string][]float32{"a.": {1, 0, 0, 0}})
	emb := &axisEmbedder{vectors: map[string][]float32{"short": {1, 0}}}
	r := New(emb, m, Config{})

	_, err := r.Retrieve(context.Background(), "short", 3)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}
