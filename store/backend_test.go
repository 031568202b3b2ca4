package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// runBackendTests exercises the Backend contract shared by every
// implementation. newBackend must return an empty store with dim 4.
func runBackendTests(t *testing.T, newBackend func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b Backend)
	}{
		{"CreateDocumentIdempotent", testCreateDocumentIdempotent},
		{"CreateDocumentConcurrent", testCreateDocumentConcurrent},
		{"GetDocumentNotFound", testGetDocumentNotFound},
		{"UpsertAndSearch", testUpsertAndSearch},
		{"SearchEmpty", testSearchEmpty},
		{"SearchTopK", testSearchTopK},
		{"SearchTopKAboveMax", testSearchTopKAboveMax},
		{"DimensionGuard", testDimensionGuard},
		{"ZeroVectorRejected", testZeroVectorRejected},
		{"DeleteDocumentCascades", testDeleteDocumentCascades},
		{"RecentOrdering", testRecentOrdering},
		{"RecentLimits", testRecentLimits},
		{"RecordSnapshot", testRecordSnapshot},
		{"Stats", testStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newBackend(t))
		})
	}
}

func mustCreate(t *testing.T, b Backend, filename string) *Document {
	t.Helper()
	doc, created, err := b.CreateDocument(context.Background(), filename, "/docs/"+filename)
	if err != nil {
		t.Fatalf("creating document %s: %v", filename, err)
	}
	if !created {
		t.Fatalf("document %s already existed", filename)
	}
	return doc
}

func mustUpsert(t *testing.T, b Backend, docID, content string, vec []float32, idx int) *Chunk {
	t.Helper()
	c, err := b.UpsertChunk(context.Background(), docID, content, vec, idx)
	if err != nil {
		t.Fatalf("upserting chunk %q: %v", content, err)
	}
	return c
}

func testCreateDocumentIdempotent(t *testing.T, b Backend) {
	ctx := context.Background()
	first := mustCreate(t, b, "doc1.pdf")
	if first.ID == "" {
		t.Fatal("expected document id")
	}

	again, created, err := b.CreateDocument(ctx, "doc1.pdf", "/elsewhere/doc1.pdf")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second create should report created=false")
	}
	if again.ID != first.ID {
		t.Errorf("existing id: got %s, want %s", again.ID, first.ID)
	}
	if again.Path != "/docs/doc1.pdf" {
		t.Errorf("path overwritten: %s", again.Path)
	}

	docs, err := b.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
}

func testCreateDocumentConcurrent(t *testing.T, b Backend) {
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := b.CreateDocument(ctx, "race.txt", "/docs/race.txt")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if createdCount != 1 {
		t.Fatalf("expected exactly one winner, got %d", createdCount)
	}
}

func testGetDocumentNotFound(t *testing.T, b Backend) {
	ctx := context.Background()
	if _, err := b.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDocument: expected ErrNotFound, got %v", err)
	}
	if _, err := b.GetDocumentByFilename(ctx, "missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDocumentByFilename: expected ErrNotFound, got %v", err)
	}
	if err := b.DeleteDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteDocument: expected ErrNotFound, got %v", err)
	}
}

func testUpsertAndSearch(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "vectors.txt")

	mustUpsert(t, b, doc.ID, "east", []float32{1, 0, 0, 0}, 0)
	mustUpsert(t, b, doc.ID, "north-east", []float32{1, 1, 0, 0}, 1)
	mustUpsert(t, b, doc.ID, "north", []float32{0, 1, 0, 0}, 2)

	results, err := b.Search(ctx, []float32{1, 0.1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"east", "north-east", "north"}
	for i, r := range results {
		if r.Content != want[i] {
			t.Errorf("result %d: got %q, want %q", i, r.Content, want[i])
		}
		if r.DocumentID != doc.ID {
			t.Errorf("result %d document: got %s", i, r.DocumentID)
		}
		if i > 0 && r.Distance < results[i-1].Distance {
			t.Errorf("distances not ascending: %v then %v", results[i-1].Distance, r.Distance)
		}
	}
	if results[0].ChunkIndex != 0 || results[2].ChunkIndex != 2 {
		t.Errorf("chunk indices: %d, %d", results[0].ChunkIndex, results[2].ChunkIndex)
	}
	if results[0].Distance > 0.05 {
		t.Errorf("nearest cosine distance too large: %v", results[0].Distance)
	}
}

func testSearchEmpty(t *testing.T, b Backend) {
	results, err := b.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("searching empty store: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func testSearchTopK(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "many.txt")
	for i := 0; i < 6; i++ {
		mustUpsert(t, b, doc.ID, fmt.Sprintf("chunk %d", i), []float32{1, float32(i), 0.5, 0}, i)
	}

	results, err := b.Search(ctx, []float32{1, 0, 0.5, 0}, 2)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	results, err = b.Search(ctx, []float32{1, 0, 0.5, 0}, 50)
	if err != nil {
		t.Fatalf("searching with large k: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected all 6 chunks, got %d", len(results))
	}

	results, err = b.Search(ctx, []float32{1, 0, 0.5, 0}, 0)
	if err != nil {
		t.Fatalf("searching with k=0: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for k=0, got %d", len(results))
	}
}

func testSearchTopKAboveMax(t *testing.T, b Backend) {
	doc := mustCreate(t, b, "big-k.txt")
	mustUpsert(t, b, doc.ID, "a", []float32{1, 0, 0, 0}, 0)
	mustUpsert(t, b, doc.ID, "b", []float32{0, 1, 0, 0}, 1)

	results, err := b.Search(context.Background(), []float32{1, 0, 0, 0}, MaxSearchK+100)
	if err != nil {
		t.Fatalf("searching with k above max: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected every chunk, got %d", len(results))
	}
}

func testZeroVectorRejected(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "zero.txt")
	mustUpsert(t, b, doc.ID, "x", []float32{1, 0, 0, 0}, 0)
	mustUpsert(t, b, doc.ID, "y", []float32{0, 1, 0, 0}, 1)

	if _, err := b.UpsertChunk(ctx, doc.ID, "zero", []float32{0, 0, 0, 0}, 2); !errors.Is(err, ErrZeroVector) {
		t.Fatalf("write: expected ErrZeroVector, got %v", err)
	}
	if _, err := b.Search(ctx, []float32{0, 0, 0, 0}, 2); !errors.Is(err, ErrZeroVector) {
		t.Fatalf("search: expected ErrZeroVector, got %v", err)
	}

	results, err := b.Search(ctx, []float32{1, 1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if math.IsNaN(r.Distance) {
			t.Fatalf("result %d has NaN distance", i)
		}
		if i > 0 && r.Distance < results[i-1].Distance {
			t.Fatalf("results not ordered by distance: %v then %v", results[i-1].Distance, r.Distance)
		}
	}
}

func testDimensionGuard(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "dims.txt")
	mustUpsert(t, b, doc.ID, "ok", []float32{1, 0, 0, 0}, 0)

	_, err := b.UpsertChunk(ctx, doc.ID, "too long", []float32{1, 0, 0, 0, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("write: expected ErrDimensionMismatch, got %v", err)
	}
	_, err = b.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("search: expected ErrDimensionMismatch, got %v", err)
	}

	chunks, err := b.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("rejected vector was stored: %d chunks", len(chunks))
	}
}

func testDeleteDocumentCascades(t *testing.T, b Backend) {
	ctx := context.Background()
	keep := mustCreate(t, b, "keep.txt")
	drop := mustCreate(t, b, "drop.txt")
	mustUpsert(t, b, keep.ID, "kept", []float32{0, 0, 1, 0}, 0)
	mustUpsert(t, b, drop.ID, "dropped a", []float32{1, 0, 0, 0}, 0)
	mustUpsert(t, b, drop.ID, "dropped b", []float32{1, 0.1, 0, 0}, 1)

	if err := b.DeleteDocument(ctx, drop.ID); err != nil {
		t.Fatalf("deleting: %v", err)
	}

	if _, err := b.GetDocument(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted document still present: %v", err)
	}
	chunks, err := b.Chunks(ctx, drop.ID)
	if err != nil {
		t.Fatalf("listing chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected chunks removed, got %d", len(chunks))
	}

	results, err := b.Search(ctx, []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(results) != 1 || results[0].Content != "kept" {
		t.Fatalf("expected only the kept chunk, got %+v", results)
	}

	// The filename is free again.
	if _, created, err := b.CreateDocument(ctx, "drop.txt", "/docs/drop.txt"); err != nil || !created {
		t.Fatalf("recreating deleted filename: created=%v err=%v", created, err)
	}
}

func testRecentOrdering(t *testing.T, b Backend) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := b.Record(ctx, QuestionRecord{
			Question:  fmt.Sprintf("q%d", i),
			Answer:    fmt.Sprintf("a%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("recording %d: %v", i, err)
		}
	}

	recent, err := b.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Question != "q4" || recent[1].Question != "q3" {
		t.Fatalf("expected q4, q3; got %s, %s", recent[0].Question, recent[1].Question)
	}
	if !recent[0].CreatedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("created_at round trip: %v", recent[0].CreatedAt)
	}
}

func testRecentLimits(t *testing.T, b Backend) {
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 150; i++ {
		// Equal timestamps fall back to insertion order.
		if _, err := b.Record(ctx, QuestionRecord{Question: fmt.Sprintf("q%d", i), Answer: "a", CreatedAt: at}); err != nil {
			t.Fatalf("recording %d: %v", i, err)
		}
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultHistoryLimit},
		{-3, DefaultHistoryLimit},
		{7, 7},
		{120, 120},
		{150, 150},
		{500, 150},
	}
	for _, tt := range tests {
		recent, err := b.Recent(ctx, tt.limit)
		if err != nil {
			t.Fatalf("recent(%d): %v", tt.limit, err)
		}
		if len(recent) != tt.want {
			t.Errorf("recent(%d): got %d records, want %d", tt.limit, len(recent), tt.want)
		}
		if len(recent) > 0 && recent[0].Question != "q149" {
			t.Errorf("recent(%d): first = %s, want q149", tt.limit, recent[0].Question)
		}
	}
}

func testRecordSnapshot(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "snap.txt")
	mustUpsert(t, b, doc.ID, "source text", []float32{0, 1, 0, 0}, 3)

	rec, err := b.Record(ctx, QuestionRecord{
		Question:       "what?",
		QuestionVector: []float32{0.5, 0.25, 0, 1},
		Answer:         "this",
		Sources:        []SourceRef{{Content: "source text", DocumentID: doc.ID, ChunkIndex: 3}},
	})
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned: %+v", rec)
	}

	if err := b.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("deleting source document: %v", err)
	}

	recent, err := b.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recent))
	}
	got := recent[0]
	if len(got.Sources) != 1 || got.Sources[0].Content != "source text" || got.Sources[0].ChunkIndex != 3 {
		t.Errorf("sources snapshot lost: %+v", got.Sources)
	}
	if len(got.QuestionVector) != 4 || got.QuestionVector[1] != 0.25 {
		t.Errorf("question vector: %v", got.QuestionVector)
	}

	empty, err := b.Record(ctx, QuestionRecord{Question: "none?", Answer: "n/a"})
	if err != nil {
		t.Fatalf("recording without sources: %v", err)
	}
	if empty.Sources == nil || len(empty.Sources) != 0 {
		t.Errorf("expected empty, non-nil sources: %#v", empty.Sources)
	}
}

func testStats(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := mustCreate(t, b, "stats.txt")
	mustUpsert(t, b, doc.ID, "a", []float32{1, 0, 0, 0}, 0)
	mustUpsert(t, b, doc.ID, "b", []float32{0, 1, 0, 0}, 1)
	if _, err := b.Record(ctx, QuestionRecord{Question: "q", Answer: "a"}); err != nil {
		t.Fatalf("recording: %v", err)
	}

	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 2 || stats.Questions != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
