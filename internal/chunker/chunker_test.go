package chunker

import (
	"strings"
	"testing"

	"github.com/seanblong/docqa/pkg/models"
)

func doc(text string) models.Document {
	return models.Document{URL: "https://docs.example.com/guide", Title: "Guide", Text: text}
}

func TestSplitShortDocumentSingleChunk(t *testing.T) {
	text := "A short document that fits in one chunk."
	chunks := Split(doc(text), 1000, 200)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.StartOffset != 0 || c.EndOffset != len(text) {
		t.Errorf("expected chunk to span [0,%d), got [%d,%d)", len(text), c.StartOffset, c.EndOffset)
	}
	if c.Text != text {
		t.Errorf("expected chunk text to equal document text")
	}
	if c.TotalChunks != 1 {
		t.Errorf("expected total chunks 1, got %d", c.TotalChunks)
	}
}

func TestSplitBoundariesWithoutSnapPoints(t *testing.T) {
	// No sentence or whitespace boundaries anywhere, so every split is a
	// hard split at the window edge.
	text := strings.Repeat("a", 2500)
	chunks := Split(doc(text), 1000, 200)

	want := [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if chunks[i].StartOffset != w[0] || chunks[i].EndOffset != w[1] {
			t.Errorf("chunk %d: expected [%d,%d), got [%d,%d)",
				i, w[0], w[1], chunks[i].StartOffset, chunks[i].EndOffset)
		}
	}
}

func TestSplitChunkSizeBound(t *testing.T) {
	// Mixed prose with sentence boundaries scattered around.
	var sb strings.Builder
	for sb.Len() < 5000 {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	chunks := Split(doc(sb.String()), 1000, 200)

	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range chunks {
		if c.EndOffset-c.StartOffset > 1000 {
			t.Errorf("chunk %d spans %d chars, over the 1000 bound", c.Index, c.EndOffset-c.StartOffset)
		}
	}
}

func TestSplitSnapsToSentenceBoundary(t *testing.T) {
	// A sentence terminator sits inside the snap window; the chunk edge
	// should land just after it instead of mid-word.
	text := strings.Repeat("a", 950) + ". " + strings.Repeat("b", 500)
	chunks := Split(doc(text), 1000, 200)

	if chunks[0].EndOffset != 951 {
		t.Errorf("expected first chunk to end after the period at 951, got %d", chunks[0].EndOffset)
	}
}

func TestSplitDeterministicIDs(t *testing.T) {
	text := strings.Repeat("stable content ", 200)
	first := Split(doc(text), 1000, 200)
	second := Split(doc(text), 1000, 200)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id not stable: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	// Different documents must never collide.
	other := models.Document{URL: "https://docs.example.com/other", Text: text}
	for i, c := range Split(other, 1000, 200) {
		if c.ID == first[i].ID {
			t.Errorf("chunk %d id collides across documents", i)
		}
	}
}

func TestChunkIDStable(t *testing.T) {
	a := ChunkID("https://docs.example.com/page", 3)
	b := ChunkID("https://docs.example.com/page", 3)
	if a != b {
		t.Errorf("ChunkID not deterministic: %s vs %s", a, b)
	}
	if a == ChunkID("https://docs.example.com/page", 4) {
		t.Error("ChunkID should differ across indexes")
	}
}

func TestSplitEmptyAndInvalid(t *testing.T) {
	if got := Split(doc("   "), 1000, 200); got != nil {
		t.Errorf("expected nil for blank document, got %d chunks", len(got))
	}
	if got := Split(doc("text"), 0, 0); got != nil {
		t.Error("expected nil for zero chunk size")
	}
	if got := Split(doc("text"), 100, 100); got != nil {
		t.Error("expected nil when overlap >= chunk size")
	}
}
