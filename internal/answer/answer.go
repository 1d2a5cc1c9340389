// Package answer builds a grounded prompt from a question and retrieved
// context and invokes the generative model. Without context it returns a
// fixed fallback instead of guessing.
package answer

import (
	"context"
	"fmt"

	"github.com/seanblong/docqa/internal/ai"
)

const systemPrompt = `You are an expert assistant answering questions about a documentation corpus.

Your responses should be:
1. Accurate and based on the provided context
2. Developer-focused with practical examples when relevant
3. Clear and well-structured
4. Honest about limitations - if you don't know something, say so

When answering questions:
- Use the provided context as your primary source of information
- If the context doesn't contain enough information, acknowledge this
- Do not fabricate facts that are not supported by the context
- Reference specific parts of the documentation when helpful`

const promptTemplate = `Based on the following documentation context, please answer the user's question.

Context:
%s

Question: %s

Provide a comprehensive answer based only on the context provided. If the context doesn't contain enough information to fully answer the question, say so and give what information you can.`

// Fallback is returned when retrieval found nothing relevant. Answering
// without grounding would be unverifiable, so we decline instead.
const Fallback = "I couldn't find anything relevant to your question in the indexed documentation. " +
	"Try rephrasing the question, or run ingestion to index more content."

// QueryError is a generative-call failure on the question path. It is
// surfaced immediately and never retried, since answering is interactive.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("answer generation: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

type Composer struct {
	client ai.Client
}

func NewComposer(client ai.Client) *Composer {
	return &Composer{client: client}
}

// Compose returns the grounded answer for a question. When contextUsed is
// false the generative call is skipped entirely and the fixed fallback is
// returned.
func (c *Composer) Compose(ctx context.Context, question, contextText string, contextUsed bool) (string, error) {
	if !contextUsed {
		return Fallback, nil
	}

	prompt := fmt.Sprintf(promptTemplate, contextText, question)
	out, err := c.client.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", &QueryError{Err: err}
	}
	return out, nil
}
