// Package provider defines the outbound service contracts the engine
// depends on: text generation and text embedding. Both are satisfied by
// the OpenAI-compatible implementation in the openai subpackage; tests
// substitute fakes.
package provider

import (
	"context"

	"recursive-companion/internal/domain"
)

// GenerateRequest is one generation call: a system prompt, optional
// conversation history, and the user prompt, with per-call sampling.
type GenerateRequest struct {
	System      string
	History     []domain.Message
	User        string
	Model       string
	Temperature float32
}

// Generator produces text. Implementations must honor ctx cancellation
// and deadlines; a timed-out call is a failed call, never a silent skip.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder turns text into a vector for similarity comparison. A single
// Embedder is shared process-wide; implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
