package docqa

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/docqa/answer"
	"github.com/brunobiangulo/docqa/embedding"
	"github.com/brunobiangulo/docqa/metrics"
	"github.com/brunobiangulo/docqa/store"
)

func (e *engine) Ask(ctx context.Context, question string, opts ...AskOption) (*Answer, error) {
	const op = "ask"

	question = strings.TrimSpace(question)
	if question == "" {
		metrics.QuestionsAnswered.WithLabelValues("error").Inc()
		return nil, fail(ErrValidation, op, errors.New("question is required"))
	}

	o := askOptions{topK: e.retriever.TopK()}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()

	// Step 1: embed the question and fetch the nearest chunks.
	retrieveStart := time.Now()
	retrieved, err := e.retriever.Retrieve(ctx, question, o.topK)
	metrics.ObserveStage("retrieve", retrieveStart)
	if err != nil {
		metrics.QuestionsAnswered.WithLabelValues("error").Inc()
		if errors.Is(err, embedding.ErrEmbedding) {
			return nil, fail(ErrEmbedding, op, err)
		}
		return nil, fail(ErrStore, op, err)
	}

	// Step 2: generate an answer grounded on the retrieved chunks.
	generateStart := time.Now()
	gen, err := e.generator.Generate(ctx, question, retrieved.Contents())
	metrics.ObserveStage("generate", generateStart)
	if err != nil {
		metrics.QuestionsAnswered.WithLabelValues("error").Inc()
		return nil, fail(ErrGeneration, op, err)
	}

	// A cancelled question leaves no history behind.
	if err := ctx.Err(); err != nil {
		metrics.QuestionsAnswered.WithLabelValues("error").Inc()
		return nil, err
	}

	// Step 3: record the exchange.
	sources := retrieved.Sources()
	recordStart := time.Now()
	rec, err := e.store.Record(ctx, store.QuestionRecord{
		Question:       question,
		QuestionVector: retrieved.Vector,
		Answer:         gen.Text,
		Sources:        sources,
	})
	metrics.ObserveStage("record", recordStart)
	if err != nil {
		metrics.QuestionsAnswered.WithLabelValues("error").Inc()
		return nil, fail(ErrStore, op, err)
	}

	result := "answered"
	if answer.IsFallback(gen.Text) {
		result = "fallback"
	}
	metrics.QuestionsAnswered.WithLabelValues(result).Inc()

	slog.Info("ask: question answered",
		"record_id", rec.ID,
		"chunks", len(retrieved.Chunks),
		"grounded", gen.Grounded,
		"cited", gen.Cited,
		"result", result,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Answer{
		RecordID:     rec.ID,
		Question:     question,
		Text:         gen.Text,
		Sources:      sources,
		Cited:        gen.Cited,
		Grounded:     gen.Grounded,
		ModelUsed:    gen.ModelUsed,
		TotalTokens:  gen.TotalTokens,
		RetrievalMs:  retrieved.ElapsedMs,
		GenerationMs: gen.ElapsedMs,
		CreatedAt:    rec.CreatedAt,
	}, nil
}
