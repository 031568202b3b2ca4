package docqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/docqa/metrics"
	"github.com/brunobiangulo/docqa/parser"
	"github.com/brunobiangulo/docqa/store"
)

// EmbedBatchSize is the number of chunks sent per embedding call.
const EmbedBatchSize = 10

// State is the lifecycle position of a document during ingestion.
type State string

const (
	StateUnseen        State = "unseen"
	StateTextExtracted State = "text_extracted"
	StateChunked       State = "chunked"
	StateEmbedding     State = "embedding"
	StatePersisted     State = "persisted"
	StateSkipped       State = "skipped"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateSkipped || s == StateFailed
}

// Progress is reported on every state transition and after each
// persisted embedding batch.
type Progress struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	State      State  `json:"state"`
	Batch      int    `json:"batch,omitempty"`
	Batches    int    `json:"batches,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Err        error  `json:"-"`
}

// IngestOption configures an ingestion call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	progress func(Progress)
}

// WithProgress registers fn to receive progress events. fn may be called
// from several goroutines when ingesting many documents.
func WithProgress(fn func(Progress)) IngestOption {
	return func(o *ingestOptions) { o.progress = fn }
}

func buildIngestOptions(opts []IngestOption) ingestOptions {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IngestResult is the outcome of ingesting one document.
type IngestResult struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	State      State  `json:"state"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
	ElapsedMs  int64  `json:"elapsed_ms"`

	err error
}

// Err returns the failure cause for a failed document.
func (r *IngestResult) Err() error { return r.err }

// IngestSummary aggregates the results of a multi-document ingestion.
type IngestSummary struct {
	Total     int             `json:"total"`
	Persisted int             `json:"persisted"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Chunks    int             `json:"chunks"`
	Results   []*IngestResult `json:"results"`
}

func buildSummary(results []*IngestResult) *IngestSummary {
	s := &IngestSummary{Total: len(results), Results: results}
	for _, r := range results {
		switch r.State {
		case StatePersisted:
			s.Persisted++
		case StateSkipped:
			s.Skipped++
		case StateFailed:
			s.Failed++
		}
		s.Chunks += r.Chunks
	}
	return s
}

// ingestion tracks one document through the pipeline.
type ingestion struct {
	res      *IngestResult
	progress func(Progress)
	start    time.Time
}

func (in *ingestion) emit(p Progress) {
	p.Path = in.res.Path
	p.Filename = in.res.Filename
	p.DocumentID = in.res.DocumentID
	if in.progress != nil {
		in.progress(p)
	}
}

func (in *ingestion) transition(s State) {
	in.res.State = s
	in.emit(Progress{State: s, Chunks: in.res.Chunks})
}

func (in *ingestion) finish(s State, err error) (*IngestResult, error) {
	in.res.ElapsedMs = time.Since(in.start).Milliseconds()
	in.res.err = err
	if err != nil {
		in.res.Error = err.Error()
	}
	in.res.State = s
	in.emit(Progress{State: s, Chunks: in.res.Chunks, Err: err})
	metrics.DocumentsIngested.WithLabelValues(string(s)).Inc()
	return in.res, err
}

func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (*IngestResult, error) {
	o := buildIngestOptions(opts)
	return e.ingestOne(ctx, path, o)
}

func (e *engine) ingestOne(ctx context.Context, path string, o ingestOptions) (*IngestResult, error) {
	const op = "ingest"

	if strings.TrimSpace(path) == "" {
		return nil, fail(ErrValidation, op, errors.New("path is required"))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fail(ErrValidation, op, fmt.Errorf("resolving path: %w", err))
	}

	in := &ingestion{
		res:      &IngestResult{Path: absPath, Filename: filepath.Base(absPath), State: StateUnseen},
		progress: o.progress,
		start:    time.Now(),
	}

	existing, err := e.store.GetDocumentByFilename(ctx, in.res.Filename)
	switch {
	case err == nil:
		in.res.DocumentID = existing.ID
		slog.Info("ingest: document already stored, skipping", "filename", in.res.Filename, "doc_id", existing.ID)
		return in.finish(StateSkipped, nil)
	case !errors.Is(err, store.ErrNotFound):
		return in.finish(StateFailed, fail(ErrStore, op, err))
	}

	text, err := e.extract(ctx, absPath)
	if err != nil {
		return in.finish(StateFailed, fail(ErrExtraction, op, err))
	}
	in.transition(StateTextExtracted)

	chunkStart := time.Now()
	chunks := e.chunkr.Chunk(text)
	metrics.ObserveStage("chunk", chunkStart)
	in.res.Chunks = len(chunks)
	if len(chunks) == 0 {
		return in.finish(StateFailed, fail(ErrExtraction, op, parser.ErrNoText))
	}
	in.transition(StateChunked)

	doc, created, err := e.store.CreateDocument(ctx, in.res.Filename, absPath)
	if err != nil {
		return in.finish(StateFailed, fail(ErrStore, op, err))
	}
	in.res.DocumentID = doc.ID
	if !created {
		slog.Info("ingest: document stored concurrently, skipping", "filename", in.res.Filename, "doc_id", doc.ID)
		return in.finish(StateSkipped, nil)
	}

	in.transition(StateEmbedding)
	if err := e.embedAndPersist(ctx, in, doc.ID, chunks); err != nil {
		return in.finish(StateFailed, err)
	}

	slog.Info("ingest: document persisted",
		"filename", in.res.Filename,
		"doc_id", doc.ID,
		"chunks", len(chunks),
		"elapsed", time.Since(in.start).Round(time.Millisecond),
	)
	return in.finish(StatePersisted, nil)
}

// extract runs the parser registered for the file's extension.
func (e *engine) extract(ctx context.Context, path string) (string, error) {
	start := time.Now()
	defer metrics.ObserveStage("extract", start)

	format := parser.FormatOf(path)
	p, err := e.parsers.Get(format)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	res, err := p.Parse(ctx, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", parser.ErrNoText
	}
	slog.Debug("ingest: text extracted", "path", path, "chars", len(res.Text), "pages", res.Pages)
	return res.Text, nil
}

type batchResult struct {
	vectors [][]float32
	err     error
}

// embedAndPersist embeds chunks in batches of EmbedBatchSize with up to
// EmbedConcurrency calls in flight, and persists each batch in order.
// Chunk i of batch b is stored with index b*EmbedBatchSize+i. The first
// failure stops the document; batches already stored are kept.
func (e *engine) embedAndPersist(ctx context.Context, in *ingestion, docID string, chunks []string) error {
	const op = "ingest"

	batches := (len(chunks) + EmbedBatchSize - 1) / EmbedBatchSize
	results := make([]chan batchResult, batches)
	for b := range results {
		results[b] = make(chan batchResult, 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Ingest.EmbedConcurrency)

	// Submitting blocks once the limit is reached, so it runs beside the
	// consumer below.
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for b := 0; b < batches; b++ {
			lo, hi := batchBounds(b, len(chunks))
			g.Go(func() error {
				if gctx.Err() != nil {
					results[b] <- batchResult{err: gctx.Err()}
					return nil
				}
				start := time.Now()
				vecs, err := e.embedder.EmbedBatch(gctx, chunks[lo:hi], false)
				metrics.ObserveStage("embed", start)
				if err == nil && len(vecs) != hi-lo {
					err = fmt.Errorf("embedding returned %d vectors for %d chunks", len(vecs), hi-lo)
				}
				if err != nil {
					metrics.EmbeddingBatches.WithLabelValues("error").Inc()
				} else {
					metrics.EmbeddingBatches.WithLabelValues("success").Inc()
				}
				results[b] <- batchResult{vectors: vecs, err: err}
				return nil
			})
		}
	}()

	var firstErr error
	for b := 0; b < batches; b++ {
		r := <-results[b]
		if r.err != nil {
			firstErr = fail(ErrEmbedding, op, fmt.Errorf("batch %d of %d: %w", b+1, batches, r.err))
			break
		}
		lo, _ := batchBounds(b, len(chunks))
		start := time.Now()
		for j, vec := range r.vectors {
			if _, err := e.store.UpsertChunk(ctx, docID, chunks[lo+j], vec, lo+j); err != nil {
				firstErr = fail(ErrStore, op, fmt.Errorf("persisting chunk %d: %w", lo+j, err))
				break
			}
			metrics.ChunksEmbedded.Inc()
		}
		metrics.ObserveStage("persist", start)
		if firstErr != nil {
			break
		}
		in.emit(Progress{State: StateEmbedding, Batch: b + 1, Batches: batches, Chunks: len(chunks)})
	}

	if firstErr != nil {
		cancel()
		slog.Warn("ingest: stopping document after failure", "doc_id", docID, "error", firstErr)
	}
	// Workers always send to a buffered channel, so waiting cannot block
	// on an unread result.
	<-submitted
	_ = g.Wait()
	return firstErr
}

func batchBounds(b, n int) (lo, hi int) {
	lo = b * EmbedBatchSize
	hi = lo + EmbedBatchSize
	if hi > n {
		hi = n
	}
	return lo, hi
}

func (e *engine) IngestAll(ctx context.Context, paths []string, opts ...IngestOption) (*IngestSummary, error) {
	o := buildIngestOptions(opts)
	results := make([]*IngestResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Ingest.Concurrency)

	for i, path := range paths {
		g.Go(func() error {
			res, err := e.ingestOne(gctx, path, o)
			if res == nil {
				res = &IngestResult{Path: path, Filename: filepath.Base(path), State: StateFailed, err: err}
				if err != nil {
					res.Error = err.Error()
				}
			}
			if err != nil {
				slog.Error("ingest: document failed", "path", path, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	summary := buildSummary(results)
	slog.Info("ingest: batch complete",
		"total", summary.Total,
		"persisted", summary.Persisted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"chunks", summary.Chunks,
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (e *engine) IngestDir(ctx context.Context, dir string, opts ...IngestOption) (*IngestSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fail(ErrValidation, "ingest_dir", fmt.Errorf("reading %s: %w", dir, err))
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !e.parsers.Supports(entry.Name()) {
			slog.Debug("ingest: skipping unsupported file", "name", entry.Name())
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	slog.Info("ingest: scanning directory", "dir", dir, "files", len(paths))
	return e.IngestAll(ctx, paths, opts...)
}
