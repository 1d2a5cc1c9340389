package ai

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
)

// Client provides embedding and answer-generation capabilities.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Generate produces a completion for the given system and user prompts.
	Generate(ctx context.Context, system, prompt string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	AnswerModel string
	Dim         int
	ProjectID   string
	Provider    Provider
	Location    string
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a stub implementation of the Client interface for testing
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 768
	}
	return &StubClient{dim: dim}
}

// Embed returns deterministic pseudo-vectors derived from the text hash,
// so identical texts always map to identical vectors.
func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := sha1.Sum([]byte(t))
		v := make([]float32, s.dim)
		for j := range v {
			v[j] = float32(h[j%len(h)])/255.0 - 0.5
		}
		out[i] = v
	}
	return out, nil
}

// Generate returns a canned completion echoing the prompt length.
func (s *StubClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	return fmt.Sprintf("stub answer (%d prompt chars)", len(prompt)), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
