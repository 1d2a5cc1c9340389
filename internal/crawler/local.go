package crawler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docqa/pkg/models"
)

// LocalSource walks a documentation tree on disk and yields its markdown,
// text and HTML files as Documents. It shares the Document contract with
// the web crawler so the ingest pipeline treats both identically.
type LocalSource struct {
	Root string
}

var localExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".html": true, ".htm": true,
}

// Run walks the tree and streams the documents, satisfying the same
// source contract the ingest pipeline uses for the web crawler.
func (s *LocalSource) Run(ctx context.Context) <-chan models.Document {
	out := make(chan models.Document)
	go func() {
		defer close(out)
		docs, err := s.Walk()
		if err != nil {
			log.Warn().Err(err).Str("root", s.Root).Msg("local docs walk failed")
		}
		for _, d := range docs {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Walk reads every supported file under Root. Unreadable files are logged
// and skipped; the walk continues.
func (s *LocalSource) Walk() ([]models.Document, error) {
	var docs []models.Document
	err := godirwalk.Walk(s.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if !localExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			b, err := os.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}

			text := string(b)
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".html" || ext == ".htm" {
				text = stripLocalHTML(text)
			}
			text = cleanText(text)
			if text == "" {
				return nil
			}

			h := sha1.Sum([]byte(text))
			docs = append(docs, models.Document{
				URL:         "file://" + path,
				Title:       titleFromPath(path),
				Text:        text,
				ContentHash: hex.EncodeToString(h[:]),
				FetchedAt:   time.Now().UTC(),
			})
			return nil
		},
	})
	return docs, err
}

func stripLocalHTML(raw string) string {
	p, err := parsePage(&url.URL{Scheme: "file"}, strings.NewReader(raw))
	if err != nil {
		return ""
	}
	return p.Text
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ReplaceAll(name, "_", " ")
}
