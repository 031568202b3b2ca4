// Package store persists documents, chunk vectors and the QA history.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDimensionMismatch is returned for vectors whose length differs
	// from the corpus dimensionality.
	ErrDimensionMismatch = errors.New("store: vector dimension mismatch")

	// ErrModelMismatch is returned when a corpus built with one embedding
	// model is opened with another.
	ErrModelMismatch = errors.New("store: embedding model mismatch")

	// ErrZeroVector is returned for all-zero vectors, which have no
	// cosine distance to anything.
	ErrZeroVector = errors.New("store: zero-norm vector")
)

const (
	// DefaultHistoryLimit is used by Recent when limit <= 0.
	DefaultHistoryLimit = 10

	// MaxSearchK is the largest topK Search honours; sqlite-vec rejects
	// larger KNN queries.
	MaxSearchK = 4096
)

// Document is one ingested source file.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"filepath"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one embedded segment of a document. Distance is only set on
// search results.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Vector     []float32 `json:"-"`
	ChunkIndex int       `json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
	Distance   float64   `json:"distance,omitempty"`
}

// SourceRef is the snapshot of a retrieved chunk kept with an answer.
type SourceRef struct {
	Content    string `json:"content"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// QuestionRecord is one answered question.
type QuestionRecord struct {
	ID             string      `json:"id"`
	Question       string      `json:"question"`
	QuestionVector []float32   `json:"-"`
	Answer         string      `json:"answer"`
	Sources        []SourceRef `json:"sources"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Stats holds row counts.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Questions int `json:"questions"`
}

// DocumentStore manages document rows.
type DocumentStore interface {
	// CreateDocument inserts a document unless one with the same filename
	// exists. created reports whether this call inserted the row; when it
	// is false the existing document is returned.
	CreateDocument(ctx context.Context, filename, path string) (doc *Document, created bool, err error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByFilename(ctx context.Context, filename string) (*Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument removes the document with its chunks and vectors.
	DeleteDocument(ctx context.Context, id string) error
	// Chunks returns a document's chunks ordered by chunk index.
	Chunks(ctx context.Context, documentID string) ([]Chunk, error)
}

// VectorStore writes chunk vectors and ranks them by cosine distance.
type VectorStore interface {
	// UpsertChunk rejects all-zero vectors with ErrZeroVector.
	UpsertChunk(ctx context.Context, documentID, content string, vector []float32, chunkIndex int) (*Chunk, error)
	// Search returns at most topK chunks, nearest first, or every chunk
	// when fewer exist. topK above MaxSearchK is treated as MaxSearchK.
	// An all-zero query fails with ErrZeroVector.
	Search(ctx context.Context, query []float32, topK int) ([]Chunk, error)
	Dimension() int
}

// HistoryStore records answered questions.
type HistoryStore interface {
	Record(ctx context.Context, rec QuestionRecord) (*QuestionRecord, error)
	// Recent returns up to limit records, most recent first. limit <= 0
	// means DefaultHistoryLimit; there is no upper bound.
	Recent(ctx context.Context, limit int) ([]QuestionRecord, error)
}

// Backend is a complete store.
type Backend interface {
	DocumentStore
	VectorStore
	HistoryStore
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

func checkNorm(v []float32) error {
	for _, x := range v {
		if x != 0 {
			return nil
		}
	}
	return ErrZeroVector
}

func now() time.Time {
	return time.Now().UTC()
}
