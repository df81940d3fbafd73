// Package similarity scores how close two texts are by comparing their
// embedding vectors. The engine uses it to decide whether successive
// revisions have converged.
package similarity

import (
	"context"
	"math"
	"sync"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/provider"
)

// cacheLimit bounds the embedding memo. Convergence checks re-embed the
// previous revision on every round; the memo keeps that to one call per
// distinct text.
const cacheLimit = 128

// Scorer computes cosine similarity over embeddings from a shared
// Embedder. Safe for concurrent use by every companion in the process.
type Scorer struct {
	embedder provider.Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

// NewScorer wraps the process-wide embedder.
func NewScorer(embedder provider.Embedder) *Scorer {
	return &Scorer{
		embedder: embedder,
		cache:    make(map[string][]float32),
	}
}

// Similarity returns the cosine similarity of the two texts in [0,1].
// Identical inputs reuse one embedding and always score 1. Embedding
// failures return a SimilarityError; callers treat that as "convergence
// not reached", never as a reason to crash the loop.
func (s *Scorer) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := s.embed(ctx, a)
	if err != nil {
		return 0, &domain.SimilarityError{Err: err}
	}
	if b == a {
		// Cosine(v, v) can land an ulp below 1 in floating point;
		// identical texts must score exactly 1.
		return 1, nil
	}
	vb, err := s.embed(ctx, b)
	if err != nil {
		return 0, &domain.SimilarityError{Err: err}
	}
	return Cosine(va, vb), nil
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	if vec, ok := s.cache[text]; ok {
		s.mu.Unlock()
		return vec, nil
	}
	s.mu.Unlock()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.cache) >= cacheLimit {
		s.cache = make(map[string][]float32)
	}
	s.cache[text] = vec
	s.mu.Unlock()
	return vec, nil
}

// Cosine computes dot(a,b) / (|a|*|b|), clamped to [0,1]. Zero or
// mismatched vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos > 1 {
		return 1
	}
	if cos < 0 {
		return 0
	}
	return cos
}
