package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/answer"
	"github.com/seanblong/docqa/internal/config"
	"github.com/seanblong/docqa/internal/crawler"
	"github.com/seanblong/docqa/internal/embedder"
	"github.com/seanblong/docqa/internal/ingest"
	"github.com/seanblong/docqa/internal/retriever"
	"github.com/seanblong/docqa/internal/store"
	"github.com/seanblong/docqa/pkg/models"
)

const version = "1.0.0"

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("docqa-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting docqa api")

	clientConfig, err := providerConfig(cfg)
	if err != nil {
		stdlog.Fatal(err)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		stdlog.Fatalf("Failed to create AI client: %v", err)
	}

	dim := client.Dim()
	if dim == 0 {
		stdlog.Fatal("embedding dimension must be set")
	}
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.Migrate(ctx, dim); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	emb := embedder.New(client, embedder.Options{})
	ret := retriever.New(emb, st, retriever.Options{
		TopK:           cfg.TopK,
		ScoreThreshold: cfg.ScoreThreshold,
		ContextBudget:  cfg.ContextBudget,
	})
	composer := answer.NewComposer(client)
	pipeline := ingest.New(st, emb, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	// Ingestion is a single logical job; overlapping runs are rejected.
	var ingesting atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		services := map[string]string{
			"provider":     string(clientConfig.Provider),
			"vector_index": "ok",
		}
		status := "healthy"

		stats, err := st.Stats(ctx)
		if err != nil {
			services["vector_index"] = "error"
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(models.HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   version,
			Services:  services,
			Documents: stats.Documents,
			Chunks:    stats.Chunks,
		}); err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()

		var req models.QuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		res, err := ret.Retrieve(ctx, req.Question, req.TopK)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("question", req.Question).Msg("retrieval failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		ans, err := composer.Compose(ctx, req.Question, res.Context, res.ContextUsed)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("question", req.Question).Msg("answer generation failed")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		resp := models.QuestionResponse{
			Query:          req.Question,
			Answer:         ans,
			ContextUsed:    res.ContextUsed,
			ProcessingTime: time.Since(start).Seconds(),
		}
		if req.IncludeSources {
			resp.Sources = res.Sources
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Omitted fields keep their defaults; embeddings update unless
		// explicitly disabled.
		req := models.IngestRequest{UpdateEmbeddings: true}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		if !ingesting.CompareAndSwap(false, true) {
			http.Error(w, "ingestion already running", http.StatusConflict)
			return
		}
		defer ingesting.Store(false)

		source, err := buildSource(cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := pipeline.Run(r.Context(), source, req)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("ingestion failed")
		}

		// The run outcome, success or not, is reported in the body.
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	stdlog.Fatal(s.ListenAndServe())
}

// buildSource assembles the document sources for one ingestion run: the
// web crawl from the configured seeds, plus the local docs tree if set.
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
