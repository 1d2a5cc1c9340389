package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockClient struct {
	generateFn func(ctx context.Context, system, prompt string) (string, error)
	calls      int
}

func (m *mockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (m *mockClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.calls++
	return m.generateFn(ctx, system, prompt)
}

func (m *mockClient) Dim() int { return 0 }

func TestComposeFallbackWithoutContext(t *testing.T) {
	client := &mockClient{generateFn: func(ctx context.Context, system, prompt string) (string, error) {
		t.Fatal("generative call must be skipped without context")
		return "", nil
	}}
	c := NewComposer(client)

	got, err := c.Compose(context.Background(), "what is this?", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Fallback {
		t.Errorf("expected fallback answer, got %q", got)
	}
	if client.calls != 0 {
		t.Errorf("expected no generative calls, got %d", client.calls)
	}
}

func TestComposeGroundedPrompt(t *testing.T) {
	var gotSystem, gotPrompt string
	client := &mockClient{generateFn: func(ctx context.Context, system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return "the answer", nil
	}}
	c := NewComposer(client)

	got, err := c.Compose(context.Background(), "how do I install?", "Context 1: run the installer", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the answer" {
		t.Errorf("expected model output, got %q", got)
	}
	if !strings.Contains(gotPrompt, "run the installer") {
		t.Error("retrieved context missing from prompt")
	}
	if !strings.Contains(gotPrompt, "how do I install?") {
		t.Error("question missing from prompt")
	}
	if gotSystem == "" {
		t.Error("expected a system prompt")
	}
}

func TestComposeWrapsGenerateFailure(t *testing.T) {
	cause := errors.New("model unavailable")
	client := &mockClient{generateFn: func(ctx context.Context, system, prompt string) (string, error) {
		return "", cause
	}}
	c := NewComposer(client)

	_, err := c.Compose(context.Background(), "q", "ctx", true)
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *QueryError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to survive")
	}
}
