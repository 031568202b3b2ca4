//go:build cgo

package store

import "fmt"

// baseSchemaSQL holds the relational tables. The vector table depends on
// the corpus dimension and is created separately by vecSchemaSQL.
const baseSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL UNIQUE,
    filepath TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- seq is the rowid of the matching vec_embeddings row
CREATE TABLE IF NOT EXISTS embeddings (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    document_id TEXT NOT NULL REFERENCES documents(id),
    content TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS qa_history (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    question TEXT NOT NULL,
    question_embedding BLOB,
    answer TEXT NOT NULL,
    source_chunks JSON NOT NULL,
    created_at TEXT NOT NULL
);

-- Corpus identity: embedding_dim and embedding_model
CREATE TABLE IF NOT EXISTS store_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_embeddings_document ON embeddings(document_id, chunk_index);
`

// vecSchemaSQL returns the DDL for the sqlite-vec table.
func vecSchemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(
    embedding float[%d] distance_metric=cosine
);
`, embeddingDim)
}
