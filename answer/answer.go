// Package answer turns a question and its retrieved context into a
// grounded answer with one chat completion.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/docqa/llm"
)

// ErrGeneration wraps every chat backend failure.
var ErrGeneration = errors.New("answer: generation failed")

const (
	// Fallback is the sentence the model is told to use when the context
	// does not contain the answer.
	Fallback = "I don't have enough information to answer this question based on the available documents."

	// EmptyAnswer replaces an empty completion.
	EmptyAnswer = "No answer generated"

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// Config holds generator configuration. Temperature is used as given,
// so 0 means greedy decoding.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the default sampling settings.
func DefaultConfig() Config {
	return Config{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// Result is a generated answer.
type Result struct {
	Text string `json:"text"`
	// Cited holds the 1-based context numbers referenced as [n].
	Cited            []int  `json:"cited,omitempty"`
	Grounded         bool   `json:"grounded"`
	ModelUsed        string `json:"model_used,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ElapsedMs        int64  `json:"elapsed_ms"`
}

// Generator composes the grounding prompt and calls the model.
type Generator struct {
	chat llm.Chatter
	cfg  Config
}

// New creates a generator. A zero MaxTokens takes the default.
func New(chat llm.Chatter, cfg Config) *Generator {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Generator{chat: chat, cfg: cfg}
}

// Generate answers question from contexts, given in rank order. With no
// contexts the fallback sentence is returned without calling the model.
func (g *Generator) Generate(ctx context.Context, question string, contexts []string) (*Result, error) {
	if len(contexts) == 0 {
		slog.Debug("answer: no context, returning fallback")
		return &Result{Text: Fallback}, nil
	}

	start := time.Now()
	prompt := buildAnswerPrompt(question, buildContext(contexts))

	resp, err := g.chat.Chat(ctx, llm.ChatRequest{
		Model: g.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		text = EmptyAnswer
	}

	res := &Result{
		Text:             text,
		Cited:            CitedContexts(text, len(contexts)),
		Grounded:         text != EmptyAnswer && !IsFallback(text),
		ModelUsed:        resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
		ElapsedMs:        time.Since(start).Milliseconds(),
	}

	slog.Info("answer: generation complete",
		"contexts", len(contexts),
		"tokens", resp.TotalTokens,
		"grounded", res.Grounded,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}
