package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/seanblong/docqa/pkg/models"
)

// Store is the persistent vector index, backed by Postgres with the
// pgvector extension. Upserts are per-id atomic; re-upserting a chunk id
// overwrites the whole record and never creates a duplicate.
type Store struct {
	pool *pgxpool.Pool
}

// VectorIndex defines the methods that the Store must implement.
type VectorIndex interface {
	Migrate(ctx context.Context, dim int) error
	UpsertDocument(ctx context.Context, doc models.Document, chunkCount int) error
	UpsertChunks(ctx context.Context, records []models.EmbeddingRecord) error
	Query(ctx context.Context, vec []float32, topK int, threshold float64) ([]models.QueryResult, error)
	DeleteDocument(ctx context.Context, documentURL string) error
	DocumentHashes(ctx context.Context) (map[string]string, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

// IndexError marks the vector store as unreachable or failing. It is
// fatal to the calling ingestion run or query.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Stats summarizes index contents for the health probe.
type Stats struct {
	Documents int64
	Chunks    int64
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies the schema. The embedding dimension is fixed at
// migration time and invariant for the index's lifetime.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
  url          TEXT PRIMARY KEY,
  title        TEXT NOT NULL DEFAULT '',
  content_hash TEXT NOT NULL,
  chunk_count  INT NOT NULL DEFAULT 0,
  fetched_at   TIMESTAMP WITH TIME ZONE,
  updated_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
  id           TEXT PRIMARY KEY,
  document_url TEXT NOT NULL,
  title        TEXT NOT NULL DEFAULT '',
  chunk_index  INT NOT NULL,
  total_chunks INT NOT NULL DEFAULT 0,
  content      TEXT NOT NULL,
  start_offset INT NOT NULL DEFAULT 0,
  end_offset   INT NOT NULL DEFAULT 0,
  word_count   INT NOT NULL DEFAULT 0,
  embedding    vector(%d) NOT NULL,
  upserted_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_document_url_idx
  ON chunks (document_url);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim)); err != nil {
		return &IndexError{Op: "migrate", Err: err}
	}
	return nil
}

// UpsertDocument records a document's content hash and chunk count for
// change detection on the next run.
func (s *Store) UpsertDocument(ctx context.Context, doc models.Document, chunkCount int) error {
	const q = `
		INSERT INTO documents (url, title, content_hash, chunk_count, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (url) DO UPDATE SET
			title        = EXCLUDED.title,
			content_hash = EXCLUDED.content_hash,
			chunk_count  = EXCLUDED.chunk_count,
			fetched_at   = EXCLUDED.fetched_at,
			updated_at   = now();`
	if _, err := s.pool.Exec(ctx, q, doc.URL, doc.Title, doc.ContentHash, chunkCount, doc.FetchedAt); err != nil {
		return &IndexError{Op: "upsert document", Err: err}
	}
	return nil
}

// UpsertChunks writes one batch of embedding records. Conflicting ids are
// overwritten whole (vector and metadata), which makes repeated ingestion
// safe.
func (s *Store) UpsertChunks(ctx context.Context, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	const q = `
		INSERT INTO chunks (
			id, document_url, title, chunk_index, total_chunks, content,
			start_offset, end_offset, word_count, embedding, upserted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (id) DO UPDATE SET
			document_url = EXCLUDED.document_url,
			title        = EXCLUDED.title,
			chunk_index  = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			content      = EXCLUDED.content,
			start_offset = EXCLUDED.start_offset,
			end_offset   = EXCLUDED.end_offset,
			word_count   = EXCLUDED.word_count,
			embedding    = EXCLUDED.embedding,
			upserted_at  = now();`

	batch := &pgx.Batch{}
	for _, r := range records {
		c := r.Chunk
		batch.Queue(q,
			c.ID, c.DocumentURL, c.Title, c.Index, c.TotalChunks, c.Text,
			c.StartOffset, c.EndOffset, c.WordCount, pgvector.NewVector(r.Vector),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return &IndexError{Op: "upsert chunks", Err: err}
		}
	}
	return nil
}

// Query returns at most topK chunks with score >= threshold, most similar
// first; ties go to the most recently upserted record.
func (s *Store) Query(ctx context.Context, vec []float32, topK int, threshold float64) ([]models.QueryResult, error) {
	const q = `
		SELECT id, document_url, title, chunk_index, total_chunks, content,
		       start_offset, end_offset, word_count,
		       LEAST(GREATEST(1.0 - cosine_distance(embedding, $1), 0), 1) AS score,
		       upserted_at
		FROM chunks
		WHERE LEAST(GREATEST(1.0 - cosine_distance(embedding, $1), 0), 1) >= $2
		ORDER BY score DESC, upserted_at DESC
		LIMIT $3;`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), threshold, topK)
	if err != nil {
		return nil, &IndexError{Op: "query", Err: err}
	}
	defer rows.Close()

	var out []models.QueryResult
	for rows.Next() {
		var c models.Chunk
		var score float64
		var upserted time.Time
		if err := rows.Scan(
			&c.ID, &c.DocumentURL, &c.Title, &c.Index, &c.TotalChunks, &c.Text,
			&c.StartOffset, &c.EndOffset, &c.WordCount, &score, &upserted,
		); err != nil {
			return nil, &IndexError{Op: "query scan", Err: err}
		}
		out = append(out, models.QueryResult{Chunk: c, Score: score, UpsertedAt: upserted})
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "query rows", Err: err}
	}
	return out, nil
}

// DeleteDocument removes every chunk derived from a document. Used when a
// document's content changed so stale chunk ids do not linger.
func (s *Store) DeleteDocument(ctx context.Context, documentURL string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_url = $1`, documentURL); err != nil {
		return &IndexError{Op: "delete document", Err: err}
	}
	return nil
}

// DocumentHashes returns the content hash recorded for every known
// document URL, used to skip re-embedding unchanged pages.
func (s *Store) DocumentHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, content_hash FROM documents`)
	if err != nil {
		return nil, &IndexError{Op: "document hashes", Err: err}
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var url, hash string
		if err := rows.Scan(&url, &hash); err != nil {
			return nil, &IndexError{Op: "document hashes scan", Err: err}
		}
		hashes[url] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "document hashes rows", Err: err}
	}
	return hashes, nil
}

// Stats reports index contents for the health probe.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM documents), (SELECT count(*) FROM chunks)`,
	).Scan(&st.Documents, &st.Chunks)
	if err != nil {
		return Stats{}, &IndexError{Op: "stats", Err: err}
	}
	return st, nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return &IndexError{Op: "ping", Err: err}
	}
	return nil
}
