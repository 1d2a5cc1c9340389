package models

import "time"

// Document is a crawled page. Identity is the normalized URL; ContentHash
// is a digest of the cleaned text used to detect unchanged content across
// recrawls. Documents are recomputed on every ingestion run.
type Document struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Chunk is a bounded, overlapping slice of a document's text, the unit of
// retrieval. ID is derived from (DocumentURL, Index) so re-chunking an
// unchanged document reproduces identical ids.
type Chunk struct {
	ID          string `json:"id"`
	DocumentURL string `json:"document_url"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Index       int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	WordCount   int    `json:"word_count"`
}

// EmbeddingRecord pairs a chunk with its vector. Records are the only
// durable entities; they live in the vector index and are replaced whole
// on upsert, never partially edited.
type EmbeddingRecord struct {
	Chunk  Chunk
	Vector []float32
}

// QueryResult is one nearest-neighbor match, score in [0,1], higher is
// more similar.
type QueryResult struct {
	Chunk      Chunk     `json:"chunk"`
	Score      float64   `json:"score"`
	UpsertedAt time.Time `json:"upserted_at"`
}

// Source is the citation attached to an answer.
type Source struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
}

// IngestRequest triggers an ingestion run.
type IngestRequest struct {
	ForceRecrawl     bool `json:"force_recrawl"`
	UpdateEmbeddings bool `json:"update_embeddings"`
}

// IngestResponse reports the outcome of an ingestion run.
type IngestResponse struct {
	Success            bool    `json:"success"`
	Message            string  `json:"message"`
	DocumentsProcessed int     `json:"documents_processed"`
	ChunksCreated      int     `json:"chunks_created"`
	EmbeddingsCreated  int     `json:"embeddings_created"`
	ProcessingTime     float64 `json:"processing_time"`
}

// QuestionRequest asks a question against the indexed corpus.
type QuestionRequest struct {
	Question       string `json:"question"`
	IncludeSources bool   `json:"include_sources"`
	TopK           int    `json:"top_k"`
}

// QuestionResponse carries the grounded answer. ContextUsed is false when
// nothing relevant was retrieved; that is a valid outcome, not an error.
type QuestionResponse struct {
	Query          string   `json:"query"`
	Answer         string   `json:"answer"`
	ContextUsed    bool     `json:"context_used"`
	Sources        []Source `json:"sources,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
}

// HealthResponse reports reachability of the index and external services.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Documents int64             `json:"documents"`
	Chunks    int64             `json:"chunks"`
}
