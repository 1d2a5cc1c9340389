// Package embedder turns chunk and query text into vectors through an
// external embedding service, with batching, retry and a fingerprint
// cache so identical text is never embedded twice.
package embedder

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seanblong/docqa/internal/ai"
)

// EmbeddingError means one batch exhausted its retries. Batches embedded
// before the failure stay cached, so a rerun resumes cheaply.
type EmbeddingError struct {
	Batch int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding batch %d: %v", e.Batch, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Options tunes batching and retry behavior.
type Options struct {
	BatchSize   int // service batch-size limit
	Concurrency int // concurrent in-flight batches
	MaxRetries  int
}

// Embedder wraps an ai.Client with batching and caching. Safe for
// concurrent use.
type Embedder struct {
	client ai.Client
	opts   Options

	mu    sync.Mutex
	cache map[string][]float32
}

// New creates an Embedder. Zero option fields fall back to defaults.
func New(client ai.Client, opts Options) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Embedder{
		client: client,
		opts:   opts,
		cache:  make(map[string][]float32),
	}
}

// Dim reports the vector dimensionality of the underlying model.
func (e *Embedder) Dim() int { return e.client.Dim() }

// Embed returns one vector per input text, in input order. Cache hits
// bypass the external call entirely; misses are grouped into batches and
// submitted concurrently. Order across batches is irrelevant because each
// result lands under its text fingerprint.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Unique cache misses, in first-seen order.
	var missing []string
	seen := make(map[string]bool)
	e.mu.Lock()
	for _, t := range texts {
		fp := Fingerprint(t)
		if _, ok := e.cache[fp]; !ok && !seen[fp] {
			seen[fp] = true
			missing = append(missing, t)
		}
	}
	e.mu.Unlock()

	if len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Concurrency)
		for start, n := 0, 0; start < len(missing); start, n = start+e.opts.BatchSize, n+1 {
			end := start + e.opts.BatchSize
			if end > len(missing) {
				end = len(missing)
			}
			batch, batchNum := missing[start:end], n
			g.Go(func() error {
				vecs, err := e.embedBatch(gctx, batch, batchNum)
				if err != nil {
					return err
				}
				e.mu.Lock()
				for i, t := range batch {
					e.cache[Fingerprint(t)] = vecs[i]
				}
				e.mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	e.mu.Lock()
	for i, t := range texts {
		out[i] = e.cache[Fingerprint(t)]
	}
	e.mu.Unlock()
	return out, nil
}

// EmbedQuery embeds a single question on the query path.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatch retries one batch with exponential backoff up to the bound.
func (e *Embedder) embedBatch(ctx context.Context, batch []string, batchNum int) ([][]float32, error) {
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().Int("batch", batchNum).Int("attempt", attempt).Err(lastErr).Msg("retrying embedding batch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &EmbeddingError{Batch: batchNum, Err: ctx.Err()}
			}
			backoff *= 2
		}
		vecs, err := e.client.Embed(ctx, batch)
		if err == nil {
			if len(vecs) != len(batch) {
				return nil, &EmbeddingError{Batch: batchNum, Err: fmt.Errorf("got %d vectors for %d texts", len(vecs), len(batch))}
			}
			return vecs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &EmbeddingError{Batch: batchNum, Err: lastErr}
}

// Fingerprint is the cache key for a text: a digest of its content.
func Fingerprint(text string) string {
	h := sha1.Sum([]byte(text))
	return hex.EncodeToString(h[:])
}
