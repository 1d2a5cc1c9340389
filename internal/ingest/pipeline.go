// Package ingest orchestrates one ingestion run: crawl, chunk, embed,
// upsert. Upserts commit per document, so a cancelled or failed run leaves
// the index valid and queryable, and a rerun is idempotent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docqa/internal/chunker"
	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

// DocumentSource streams crawled documents. The stream is finite; a fresh
// run re-fetches from seeds.
type DocumentSource interface {
	Run(ctx context.Context) <-chan models.Document
}

// BatchEmbedder embeds chunk texts, preserving input order.
type BatchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options fixes the chunking geometry for a run.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

type Pipeline struct {
	index    store.VectorIndex
	embedder BatchEmbedder
	opts     Options
}

func New(index store.VectorIndex, embedder BatchEmbedder, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	return &Pipeline{index: index, embedder: embedder, opts: opts}
}

// Run consumes the source until it is exhausted or ctx is cancelled.
// Unless req.ForceRecrawl is set, documents whose content hash matches the
// previous run are skipped, which makes a rerun over an unchanged corpus
// report zero embeddings created. An index failure is fatal to the run; an
// embedding failure stops the run but leaves prior committed documents
// valid.
func (p *Pipeline) Run(ctx context.Context, source DocumentSource, req models.IngestRequest) (models.IngestResponse, error) {
	start := time.Now()
	resp := models.IngestResponse{}

	prior, err := p.index.DocumentHashes(ctx)
	if err != nil {
		return p.finish(resp, start, err)
	}

	docs := source.Run(ctx)
	for doc := range docs {
		if ctx.Err() != nil {
			return p.finish(resp, start, ctx.Err())
		}

		resp.DocumentsProcessed++

		priorHash, known := prior[doc.URL]
		if !req.ForceRecrawl && known && priorHash == doc.ContentHash {
			log.Debug().Str("url", doc.URL).Msg("content unchanged, skipping")
			continue
		}
		if !req.UpdateEmbeddings {
			continue
		}

		if err := p.ingestDocument(ctx, doc, known && priorHash != doc.ContentHash, &resp); err != nil {
			return p.finish(resp, start, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return p.finish(resp, start, err)
	}
	return p.finish(resp, start, nil)
}

// ingestDocument commits one document end to end: chunk, embed, replace
// stale chunks, upsert records, then record the document hash.
func (p *Pipeline) ingestDocument(ctx context.Context, doc models.Document, changed bool, resp *models.IngestResponse) error {
	chunks := chunker.Split(doc, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return nil
	}
	resp.ChunksCreated += len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	// A changed document may have a different chunk count than before;
	// deleting first prevents orphaned stale chunk ids.
	if changed {
		if err := p.index.DeleteDocument(ctx, doc.URL); err != nil {
			return err
		}
	}

	records := make([]models.EmbeddingRecord, len(chunks))
	for i := range chunks {
		records[i] = models.EmbeddingRecord{Chunk: chunks[i], Vector: vecs[i]}
	}
	if err := p.index.UpsertChunks(ctx, records); err != nil {
		return err
	}
	if err := p.index.UpsertDocument(ctx, doc, len(chunks)); err != nil {
		return err
	}

	resp.EmbeddingsCreated += len(records)
	log.Info().Str("url", doc.URL).Int("chunks", len(chunks)).Msg("document ingested")
	return nil
}

func (p *Pipeline) finish(resp models.IngestResponse, start time.Time, err error) (models.IngestResponse, error) {
	resp.ProcessingTime = time.Since(start).Seconds()
	if err == nil {
		resp.Success = true
		resp.Message = fmt.Sprintf("ingested %d documents, %d chunks, %d embeddings",
			resp.DocumentsProcessed, resp.ChunksCreated, resp.EmbeddingsCreated)
		return resp, nil
	}

	resp.Success = false
	switch {
	case errors.Is(err, context.Canceled):
		resp.Message = "ingestion cancelled; index remains valid and partially updated"
	default:
		resp.Message = fmt.Sprintf("ingestion failed: %v", err)
	}
	log.Error().Err(err).Msg("ingestion run did not complete")
	return resp, err
}
