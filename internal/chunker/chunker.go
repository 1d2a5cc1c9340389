// Package chunker splits a document's text into overlapping, bounded-size
// retrievable units. Splitting is a pure function of its inputs: the same
// document and settings always reproduce the same chunks with the same ids.
package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/seanblong/docqa/pkg/models"
)

// snapTolerance is how far back from the hard window edge we look for a
// sentence or whitespace boundary before accepting a mid-word split.
const snapTolerance = 100

// Split cuts the document text into chunks of at most maxSize characters.
// The window start advances by maxSize-overlap each step; the right edge
// snaps backward to the nearest sentence or whitespace boundary within
// snapTolerance. Documents shorter than maxSize yield exactly one chunk.
func Split(doc models.Document, maxSize, overlap int) []models.Chunk {
	if maxSize <= 0 || overlap < 0 || overlap >= maxSize {
		return nil
	}
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []models.Chunk
	stride := maxSize - overlap
	for start := 0; start < len(text); start += stride {
		end := start + maxSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = snapBack(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			idx := len(chunks)
			chunks = append(chunks, models.Chunk{
				ID:          ChunkID(doc.URL, idx),
				DocumentURL: doc.URL,
				Title:       doc.Title,
				Text:        piece,
				Index:       idx,
				StartOffset: start,
				EndOffset:   end,
				WordCount:   len(strings.Fields(piece)),
			})
		}
		if end == len(text) {
			break
		}
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// snapBack moves end backward to the closest boundary within tolerance:
// a sentence terminator wins over plain whitespace, and a hard split is
// the last resort.
func snapBack(text string, start, end int) int {
	low := end - snapTolerance
	if low < start {
		low = start
	}
	for i := end - 1; i >= low; i-- {
		switch text[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	for i := end - 1; i >= low; i-- {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			return i
		}
	}
	return end
}

// ChunkID derives the stable id for a (document URL, chunk index) pair.
func ChunkID(documentURL string, index int) string {
	h := sha1.Sum([]byte(documentURL + "#" + fmt.Sprintf("%d", index)))
	return hex.EncodeToString(h[:])
}
