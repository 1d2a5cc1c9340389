package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/config"
	"github.com/seanblong/docqa/internal/crawler"
	"github.com/seanblong/docqa/internal/embedder"
	"github.com/seanblong/docqa/internal/ingest"
	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

func main() {
	fs := pflag.NewFlagSet("docqa-ingest", pflag.ExitOnError)
	fs.Bool("force-recrawl", false, "Re-embed documents even when content is unchanged")
	fs.Bool("skip-embeddings", false, "Crawl and count only, do not touch the index")

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	force, _ := fs.GetBool("force-recrawl")
	skipEmbeddings, _ := fs.GetBool("skip-embeddings")

	clientConfig, err := providerConfig(cfg)
	if err != nil {
		stdlog.Fatal(err)
	}

	// Stop between batches on SIGINT/SIGTERM; committed upserts stay.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		stdlog.Fatal(err)
	}
	defer st.Close()

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		stdlog.Fatal(err)
	}
	if client.Dim() == 0 {
		stdlog.Fatal("embedding dimension must be set")
	}

	if err := st.Migrate(ctx, client.Dim()); err != nil {
		stdlog.Fatal(err)
	}

	source, err := buildSource(cfg)
	if err != nil {
		stdlog.Fatal(err)
	}

	emb := embedder.New(client, embedder.Options{})
	pipeline := ingest.New(st, emb, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	resp, err := pipeline.Run(ctx, source, models.IngestRequest{
		ForceRecrawl:     force,
		UpdateEmbeddings: !skipEmbeddings,
	})
	log.Info().
		Bool("success", resp.Success).
		Int("documents", resp.DocumentsProcessed).
		Int("chunks", resp.ChunksCreated).
		Int("embeddings", resp.EmbeddingsCreated).
		Float64("seconds", resp.ProcessingTime).
		Msg(resp.Message)
	if err != nil {
		os.Exit(1)
	}
}

func buildSource(cfg config.Specification) (ingest.DocumentSource, error) {
	var sources []ingest.DocumentSource
	if len(cfg.SeedURLs) > 0 {
		c, err := crawler.New(crawler.Config{
			Seeds:         cfg.SeedURLs,
			AllowedDomain: cfg.AllowedDomain,
			MaxPages:      cfg.MaxPages,
			Workers:       cfg.CrawlWorkers,
		}, nil)
		if err != nil {
			return nil, err
		}
		sources = append(sources, c)
	}
	if cfg.DocsRoot != "" {
		sources = append(sources, &crawler.LocalSource{Root: cfg.DocsRoot})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no seed URLs or docs root configured")
	}
	return ingest.Multi(sources...), nil
}

func providerConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Provider:    ai.ProviderOpenAI,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderVertexAI,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
