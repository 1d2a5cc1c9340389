// Package retriever turns a question into a token-budgeted, deduplicated
// context assembled from the best-matching chunks in the vector index.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

const snippetLength = 200

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options tunes retrieval. Defaults: TopK 5, ScoreThreshold 0.25,
// ContextBudget 6000 characters.
type Options struct {
	TopK           int
	ScoreThreshold float64
	ContextBudget  int
}

// Result is what retrieval hands to the answer composer. ContextUsed is
// false when nothing relevant survived filtering; that is a valid "no
// relevant knowledge" outcome, not an error.
type Result struct {
	Context     string
	Sources     []models.Source
	ContextUsed bool
}

type Retriever struct {
	embedder QueryEmbedder
	index    store.VectorIndex
	opts     Options
}

func New(embedder QueryEmbedder, index store.VectorIndex, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ScoreThreshold <= 0 {
		opts.ScoreThreshold = 0.25
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 6000
	}
	return &Retriever{embedder: embedder, index: index, opts: opts}
}

// Retrieve embeds the question, queries the index, filters and
// deduplicates candidates, and assembles the context string. topK <= 0
// uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (Result, error) {
	if topK <= 0 {
		topK = r.opts.TopK
	}

	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	candidates, err := r.index.Query(ctx, vec, topK, r.opts.ScoreThreshold)
	if err != nil {
		return Result{}, err
	}

	// Keep only the best chunk per document so one page cannot dominate
	// the context. Candidates arrive sorted by score descending.
	byDoc := make(map[string]bool)
	var kept []models.QueryResult
	for _, c := range candidates {
		if byDoc[c.Chunk.DocumentURL] {
			continue
		}
		byDoc[c.Chunk.DocumentURL] = true
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		log.Debug().Str("question", question).Msg("no candidates above threshold")
		return Result{ContextUsed: false, Sources: []models.Source{}}, nil
	}

	res := Result{ContextUsed: true}
	var sb strings.Builder
	for i, c := range kept {
		block := fmt.Sprintf("Context %d (Score: %.3f):\nTitle: %s\nURL: %s\nContent: %s\n\n",
			i+1, c.Score, c.Chunk.Title, c.Chunk.DocumentURL, c.Chunk.Text)

		if sb.Len()+len(block) > r.opts.ContextBudget {
			// Over budget: truncate this lowest-scoring survivor and stop.
			room := r.opts.ContextBudget - sb.Len()
			if room > 0 {
				sb.WriteString(block[:room])
			}
			res.Sources = append(res.Sources, toSource(c))
			break
		}
		sb.WriteString(block)
		res.Sources = append(res.Sources, toSource(c))
	}
	res.Context = strings.TrimSpace(sb.String())
	return res, nil
}

func toSource(c models.QueryResult) models.Source {
	snippet := c.Chunk.Text
	if len(snippet) > snippetLength {
		snippet = snippet[:snippetLength] + "..."
	}
	return models.Source{
		Title:          c.Chunk.Title,
		URL:            c.Chunk.DocumentURL,
		RelevanceScore: c.Score,
		Snippet:        snippet,
	}
}
