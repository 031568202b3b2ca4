package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/docqa/llm"
)

type fakeChat struct {
	reply string
	err   error
	reqs  []llm.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply, Model: "fake", TotalTokens: 42}, nil
}

func TestGeneratePrompt(t *testing.T) {
	chat := &fakeChat{reply: "  X is a letter [1].  "}
	g := New(chat, DefaultConfig())

	res, err := g.Generate(context.Background(), "What is X?", []string{"X is a letter.", "Y follows X."})
	require.NoError(t, err)

	require.Len(t, chat.reqs, 1)
	req := chat.reqs[0]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 500, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant that answers questions based on the provided context. \n"+
		"If the answer cannot be found in the context, say \"I don't have enough information to answer this question based on the available documents.\"\n"+
		"Always provide accurate, concise, and helpful answers.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "Context:\n[1] X is a letter.\n\n[2] Y follows X.\n\nQuestion: What is X?\n\nAnswer:", req.Messages[1].Content)

	assert.Equal(t, "X is a letter [1].", res.Text)
	assert.Equal(t, []int{1}, res.Cited)
	assert.True(t, res.Grounded)
	assert.Equal(t, 42, res.TotalTokens)
	assert.Equal(t, "fake", res.ModelUsed)
}

func TestGenerateEmptyReply(t *testing.T) {
	g := New(&fakeChat{reply: "   "}, Config{})

	res, err := g.Generate(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, EmptyAnswer, res.Text)
	assert.False(t, res.Grounded)
}

func TestGenerateNoContextSkipsModel(t *testing.T) {
	chat := &fakeChat{reply: "should not be used"}
	g := New(chat, DefaultConfig())

	res, err := g.Generate(context.Background(), "What is X?", nil)
	require.NoError(t, err)
	assert.Equal(t, Fallback, res.Text)
	assert.Empty(t, chat.reqs)
	assert.False(t, res.Grounded)
}

func TestGenerateFailure(t *testing.T) {
	cause := errors.New("503 from backend")
	g := New(&fakeChat{err: cause}, Config{})

	_, err := g.Generate(context.Background(), "q", []string{"c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)
}

func TestGenerateCustomSampling(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	g := New(chat, Config{Model: "gpt-4o-mini", Temperature: 0.2, MaxTokens: 64})

	_, err := g.Generate(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", chat.reqs[0].Model)
	assert.Equal(t, 0.2, chat.reqs[0].Temperature)
	assert.Equal(t, 64, chat.reqs[0].MaxTokens)
}

func TestGenerateZeroTemperature(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	g := New(chat, Config{Temperature: 0})

	_, err := g.Generate(context.Background(), "q", []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, chat.reqs[0].Temperature)
	assert.Equal(t, DefaultMaxTokens, chat.reqs[0].MaxTokens)
}

func TestCitedContexts(t *testing.T) {
	tests := []struct {
		answer string
		n      int
		want   []int
	}{
		{"See [2] and [1].", 3, []int{1, 2}},
		{"Repeated [1] [1] [Source 1].", 2, []int{1}},
		{"Out of range [4] [0].", 3, nil},
		{"[Source 3] says so.", 3, []int{3}},
		{"No markers at all.", 3, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CitedContexts(tt.answer, tt.n), tt.answer)
	}
}

func TestIsFallback(t *testing.T) {
	assert.True(t, IsFallback(Fallback))
	assert.True(t, IsFallback(`"`+Fallback+`"`))
	assert.True(t, IsFallback("Sorry. "+Fallback))
	assert.False(t, IsFallback("X is a letter."))
}
