package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// Memory is a process-local Backend. Ranking goes through a chromem-go
// collection; rows live in maps guarded by mu.
type Memory struct {
	mu         sync.RWMutex
	dim        int
	collection *chromem.Collection

	docs       map[string]*Document
	byFilename map[string]string
	chunks     map[string]*Chunk
	docChunks  map[string][]string
	history    []QuestionRecord
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty store. dim may be 0, in which case the first
// written vector establishes it.
func NewMemory(dim int) (*Memory, error) {
	db := chromem.NewDB()
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("store: memory collection only accepts precomputed vectors")
	}
	col, err := db.CreateCollection("chunks", nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &Memory{
		dim:        dim,
		collection: col,
		docs:       map[string]*Document{},
		byFilename: map[string]string{},
		chunks:     map[string]*Chunk{},
		docChunks:  map[string][]string{},
	}, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

// --- Document operations ---

func (m *Memory) CreateDocument(_ context.Context, filename, path string) (*Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byFilename[filename]; ok {
		d := *m.docs[id]
		return &d, false, nil
	}
	d := &Document{ID: uuid.NewString(), Filename: filename, Path: path, CreatedAt: now()}
	m.docs[d.ID] = d
	m.byFilename[filename] = d.ID
	out := *d
	return &out, true, nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *Memory) GetDocumentByFilename(ctx context.Context, filename string) (*Document, error) {
	m.mu.RLock()
	id, ok := m.byFilename[filename]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetDocument(ctx, id)
}

// ListDocuments returns all documents, newest first.
func (m *Memory) ListDocuments(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, *d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].Filename < docs[j].Filename
	})
	return docs, nil
}

func (m *Memory) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if ids := m.docChunks[id]; len(ids) > 0 {
		if err := m.collection.Delete(ctx, nil, nil, ids...); err != nil {
			return fmt.Errorf("deleting vectors: %w", err)
		}
		for _, cid := range ids {
			delete(m.chunks, cid)
		}
	}
	delete(m.docChunks, id)
	delete(m.byFilename, d.Filename)
	delete(m.docs, id)
	return nil
}

func (m *Memory) Chunks(_ context.Context, documentID string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.docChunks[documentID]
	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.chunks[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// --- Vector operations ---

func (m *Memory) UpsertChunk(ctx context.Context, documentID, content string, vector []float32, chunkIndex int) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[documentID]; !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err := checkNorm(vector); err != nil {
		return nil, err
	}
	if m.dim == 0 && len(vector) > 0 {
		m.dim = len(vector)
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: got %d, corpus has %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	c := &Chunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Content:    content,
		Vector:     append([]float32(nil), vector...),
		ChunkIndex: chunkIndex,
		CreatedAt:  now(),
	}

	err := m.collection.AddDocument(ctx, chromem.Document{
		ID:        c.ID,
		Content:   content,
		Embedding: append([]float32(nil), vector...),
		Metadata: map[string]string{
			"document_id": documentID,
			"chunk_index": strconv.Itoa(chunkIndex),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("adding vector: %w", err)
	}

	m.chunks[c.ID] = c
	m.docChunks[documentID] = append(m.docChunks[documentID], c.ID)
	out := *c
	return &out, nil
}

// Search ranks chunks by cosine distance, nearest first.
func (m *Memory) Search(ctx context.Context, query []float32, topK int) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim != 0 && len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, corpus has %d", ErrDimensionMismatch, len(query), m.dim)
	}
	if err := checkNorm(query); err != nil {
		return nil, err
	}
	if topK > MaxSearchK {
		topK = MaxSearchK
	}
	// chromem requires 0 < nResults <= Count.
	count := m.collection.Count()
	if topK <= 0 || count == 0 {
		return []Chunk{}, nil
	}
	if topK > count {
		topK = count
	}

	res, err := m.collection.QueryEmbedding(ctx, append([]float32(nil), query...), topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	out := make([]Chunk, 0, len(res))
	for _, r := range res {
		c, ok := m.chunks[r.ID]
		if !ok {
			continue
		}
		hit := *c
		hit.Vector = nil
		hit.Distance = 1 - float64(r.Similarity)
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// --- History operations ---

func (m *Memory) Record(_ context.Context, rec QuestionRecord) (*QuestionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	rec.Sources = append([]SourceRef{}, rec.Sources...)
	rec.QuestionVector = append([]float32(nil), rec.QuestionVector...)

	m.mu.Lock()
	m.history = append(m.history, rec)
	m.mu.Unlock()

	out := rec
	return &out, nil
}

// Recent returns up to limit records, most recent first. Records with equal
// timestamps come back in reverse insertion order.
func (m *Memory) Recent(_ context.Context, limit int) ([]QuestionRecord, error) {
	limit = historyLimit(limit)

	m.mu.RLock()
	all := make([]QuestionRecord, len(m.history))
	copy(all, m.history)
	m.mu.RUnlock()

	// Reverse first so the stable sort keeps later inserts ahead on ties.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		Documents: len(m.docs),
		Chunks:    len(m.chunks),
		Questions: len(m.history),
	}, nil
}
