package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeIndex implements store.VectorIndex with canned query results.
type fakeIndex struct {
	results  []models.QueryResult
	queryErr error

	gotTopK      int
	gotThreshold float64
}

func (f *fakeIndex) Query(ctx context.Context, vec []float32, topK int, threshold float64) ([]models.QueryResult, error) {
	f.gotTopK = topK
	f.gotThreshold = threshold
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func (f *fakeIndex) Migrate(ctx context.Context, dim int) error { return nil }
func (f *fakeIndex) UpsertDocument(ctx context.Context, doc models.Document, chunkCount int) error {
	return nil
}
func (f *fakeIndex) UpsertChunks(ctx context.Context, records []models.EmbeddingRecord) error {
	return nil
}
func (f *fakeIndex) DeleteDocument(ctx context.Context, documentURL string) error { return nil }
func (f *fakeIndex) DocumentHashes(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
func (f *fakeIndex) Stats(ctx context.Context) (store.Stats, error) { return store.Stats{}, nil }
func (f *fakeIndex) Ping(ctx context.Context) error                 { return nil }

func result(docURL, title, text string, score float64) models.QueryResult {
	return models.QueryResult{
		Chunk: models.Chunk{DocumentURL: docURL, Title: title, Text: text},
		Score: score,
	}
}

func TestRetrieveNoCandidates(t *testing.T) {
	r := New(&fakeEmbedder{}, &fakeIndex{}, Options{})

	res, err := r.Retrieve(context.Background(), "anything indexed?", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ContextUsed {
		t.Error("expected ContextUsed=false with an empty index")
	}
	if res.Sources == nil {
		t.Error("expected empty sources slice, not nil")
	}
	if len(res.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(res.Sources))
	}
	if res.Context != "" {
		t.Errorf("expected empty context, got %q", res.Context)
	}
}

func TestRetrieveDefaults(t *testing.T) {
	idx := &fakeIndex{}
	r := New(&fakeEmbedder{}, idx, Options{})

	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.gotTopK != 5 {
		t.Errorf("expected default topK 5, got %d", idx.gotTopK)
	}
	if idx.gotThreshold != 0.25 {
		t.Errorf("expected default threshold 0.25, got %v", idx.gotThreshold)
	}
}

func TestRetrieveDedupesPerDocument(t *testing.T) {
	idx := &fakeIndex{results: []models.QueryResult{
		result("https://docs.example.com/a", "A", "best chunk of a", 0.9),
		result("https://docs.example.com/a", "A", "second chunk of a", 0.8),
		result("https://docs.example.com/b", "B", "chunk of b", 0.7),
	}}
	r := New(&fakeEmbedder{}, idx, Options{})

	res, err := r.Retrieve(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ContextUsed {
		t.Fatal("expected ContextUsed=true")
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 sources after dedupe, got %d", len(res.Sources))
	}
	if res.Sources[0].Snippet != "best chunk of a" {
		t.Errorf("expected highest-scoring chunk kept, got %q", res.Sources[0].Snippet)
	}
	if strings.Contains(res.Context, "second chunk of a") {
		t.Error("deduplicated chunk leaked into context")
	}
	if !strings.Contains(res.Context, "chunk of b") {
		t.Error("second document missing from context")
	}
}

func TestRetrieveRespectsContextBudget(t *testing.T) {
	long := strings.Repeat("x", 300)
	idx := &fakeIndex{results: []models.QueryResult{
		result("https://docs.example.com/a", "A", long, 0.9),
		result("https://docs.example.com/b", "B", long, 0.8),
		result("https://docs.example.com/c", "C", long, 0.7),
	}}
	budget := 500
	r := New(&fakeEmbedder{}, idx, Options{ContextBudget: budget})

	res, err := r.Retrieve(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Context) > budget {
		t.Errorf("context length %d exceeds budget %d", len(res.Context), budget)
	}
	// The chunk that got truncated still appears as a source; anything
	// after it is dropped.
	if len(res.Sources) != 2 {
		t.Errorf("expected 2 sources within budget, got %d", len(res.Sources))
	}
	if !strings.Contains(res.Context, "https://docs.example.com/a") {
		t.Error("highest-scoring document missing from context")
	}
}

func TestRetrieveSnippetTruncation(t *testing.T) {
	long := strings.Repeat("y", 500)
	idx := &fakeIndex{results: []models.QueryResult{
		result("https://docs.example.com/a", "A", long, 0.9),
	}}
	r := New(&fakeEmbedder{}, idx, Options{})

	res, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := res.Sources[0].Snippet
	if !strings.HasSuffix(s, "...") {
		t.Errorf("expected snippet ellipsis, got %q", s)
	}
	if len(s) != snippetLength+3 {
		t.Errorf("expected snippet length %d, got %d", snippetLength+3, len(s))
	}
}

func TestRetrieveEmbedError(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("quota")}, &fakeIndex{}, Options{})
	if _, err := r.Retrieve(context.Background(), "q", 1); err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

func TestRetrieveIndexError(t *testing.T) {
	idx := &fakeIndex{queryErr: &store.IndexError{Op: "query", Err: errors.New("down")}}
	r := New(&fakeEmbedder{}, idx, Options{})

	_, err := r.Retrieve(context.Background(), "q", 1)
	var idxErr *store.IndexError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected *store.IndexError, got %v", err)
	}
}
