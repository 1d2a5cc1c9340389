package ingest

import (
	"context"

	"github.com/seanblong/docqa/pkg/models"
)

// Multi chains document sources into one stream, drained in order. Used
// to ingest a local docs tree alongside the web crawl.
func Multi(sources ...DocumentSource) DocumentSource {
	return multiSource(sources)
}

type multiSource []DocumentSource

func (m multiSource) Run(ctx context.Context) <-chan models.Document {
	out := make(chan models.Document)
	go func() {
		defer close(out)
		for _, s := range m {
			for doc := range s.Run(ctx) {
				select {
				case out <- doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
