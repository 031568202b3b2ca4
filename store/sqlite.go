//go:build cgo

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is the persistent Backend on SQLite with sqlite-vec.
type SQLite struct {
	db           *sql.DB
	embeddingDim int
	model        string
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dbPath. embeddingDim may be
// 0 for an existing corpus, in which case the stored dimension is used.
// A non-empty model must match the model the corpus was built with.
func OpenSQLite(dbPath string, embeddingDim int, model string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(baseSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLite{db: db}
	ctx := context.Background()

	if err := s.resolveIdentity(ctx, embeddingDim, model); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(vecSchemaSQL(s.embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector table: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// resolveIdentity checks the requested dimension and model against
// store_meta and records them for a new corpus.
func (s *SQLite) resolveIdentity(ctx context.Context, dim int, model string) error {
	meta := map[string]string{}
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM store_meta")
	if err != nil {
		return fmt.Errorf("reading store_meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return err
		}
		meta[k] = v
	}
	rows.Close()

	if stored, ok := meta["embedding_dim"]; ok {
		n, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("store_meta embedding_dim %q: %w", stored, err)
		}
		if dim != 0 && dim != n {
			return fmt.Errorf("%w: corpus has %d dimensions, embedder produces %d", ErrDimensionMismatch, n, dim)
		}
		dim = n
	}
	if dim <= 0 {
		return fmt.Errorf("store: embedding dimension required for a new database")
	}

	if stored, ok := meta["embedding_model"]; ok && stored != "" {
		if model != "" && model != stored {
			return fmt.Errorf("%w: corpus built with %q, configured %q", ErrModelMismatch, stored, model)
		}
		model = stored
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES ('embedding_dim', ?), ('embedding_model', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(dim), model)
	if err != nil {
		return fmt.Errorf("writing store_meta: %w", err)
	}

	s.embeddingDim = dim
	s.model = model
	return nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Dimension returns the corpus embedding dimension.
func (s *SQLite) Dimension() int {
	return s.embeddingDim
}

// Model returns the embedding model recorded for the corpus.
func (s *SQLite) Model() string {
	return s.model
}

// --- Document operations ---

func (s *SQLite) CreateDocument(ctx context.Context, filename, path string) (*Document, bool, error) {
	doc := &Document{
		ID:        uuid.NewString(),
		Filename:  filename,
		Path:      path,
		CreatedAt: now(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, filepath, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(filename) DO NOTHING
	`, doc.ID, doc.Filename, doc.Path, formatTime(doc.CreatedAt))
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		existing, err := s.GetDocumentByFilename(ctx, filename)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return doc, true, nil
}

func (s *SQLite) GetDocument(ctx context.Context, id string) (*Document, error) {
	return s.getDocument(ctx, "id", id)
}

func (s *SQLite) GetDocumentByFilename(ctx context.Context, filename string) (*Document, error) {
	return s.getDocument(ctx, "filename", filename)
}

func (s *SQLite) getDocument(ctx context.Context, column, value string) (*Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, filename, filepath, created_at FROM documents WHERE "+column+" = ?", value,
	).Scan(&d.ID, &d.Filename, &d.Path, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLite) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, filepath, created_at
		FROM documents ORDER BY created_at DESC, filename
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Path, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = parseTime(createdAt)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document, its chunks and their vectors in one
// transaction.
func (s *SQLite) DeleteDocument(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_embeddings WHERE rowid IN (
				SELECT seq FROM embeddings WHERE document_id = ?
			)`, id); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = ?", id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Chunks returns a document's chunks with their vectors, by chunk index.
func (s *SQLite) Chunks(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.document_id, e.content, e.chunk_index, e.created_at, v.embedding
		FROM embeddings e
		LEFT JOIN vec_embeddings v ON v.rowid = e.seq
		WHERE e.document_id = ?
		ORDER BY e.chunk_index, e.seq
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		var createdAt string
		var vec []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &createdAt, &vec); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		c.Vector = deserializeFloat32(vec)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- Vector operations ---

// UpsertChunk appends a chunk row and its vector.
func (s *SQLite) UpsertChunk(ctx context.Context, documentID, content string, vector []float32, chunkIndex int) (*Chunk, error) {
	if len(vector) != s.embeddingDim {
		return nil, fmt.Errorf("%w: got %d, corpus has %d", ErrDimensionMismatch, len(vector), s.embeddingDim)
	}
	if err := checkNorm(vector); err != nil {
		return nil, err
	}

	c := &Chunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Content:    content,
		Vector:     vector,
		ChunkIndex: chunkIndex,
		CreatedAt:  now(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (id, document_id, content, chunk_index, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, c.DocumentID, c.Content, c.ChunkIndex, formatTime(c.CreatedAt))
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_embeddings (rowid, embedding) VALUES (?, ?)",
			seq, serializeFloat32(vector))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Search performs a KNN search returning the topK nearest chunks.
func (s *SQLite) Search(ctx context.Context, query []float32, topK int) ([]Chunk, error) {
	if len(query) != s.embeddingDim {
		return nil, fmt.Errorf("%w: query has %d, corpus has %d", ErrDimensionMismatch, len(query), s.embeddingDim)
	}
	if err := checkNorm(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Chunk{}, nil
	}
	if topK > MaxSearchK {
		topK = MaxSearchK
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.document_id, e.content, e.chunk_index, e.created_at, v.distance
		FROM vec_embeddings v
		JOIN embeddings e ON e.seq = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(query), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Chunk{}
	for rows.Next() {
		var c Chunk
		var createdAt string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &createdAt, &c.Distance); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- History operations ---

// Record appends a QA history row. ID and CreatedAt are assigned when empty.
func (s *SQLite) Record(ctx context.Context, rec QuestionRecord) (*QuestionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	if rec.Sources == nil {
		rec.Sources = []SourceRef{}
	}

	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return nil, fmt.Errorf("encoding sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO qa_history (id, question, question_embedding, answer, source_chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Question, serializeFloat32(rec.QuestionVector), rec.Answer, string(sources), formatTime(rec.CreatedAt))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns up to limit records, most recent first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, question_embedding, answer, source_chunks, created_at
		FROM qa_history
		ORDER BY created_at DESC, seq DESC
		LIMIT ?
	`, historyLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []QuestionRecord{}
	for rows.Next() {
		var r QuestionRecord
		var vec []byte
		var sources, createdAt string
		if err := rows.Scan(&r.ID, &r.Question, &vec, &r.Answer, &sources, &createdAt); err != nil {
			return nil, err
		}
		r.QuestionVector = deserializeFloat32(vec)
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources of %s: %w", r.ID, err)
		}
		if r.Sources == nil {
			r.Sources = []SourceRef{}
		}
		r.CreatedAt = parseTime(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns row counts.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM embeddings", &stats.Chunks},
		{"SELECT COUNT(*) FROM qa_history", &stats.Questions},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
