// Package embed provides the Embedder contract: deterministic text -> unit
// vector, with an HTTP-backed primary implementation and a seed-free
// hash-based fallback that survives process restarts.
package embed

import (
	"context"
	"strings"

	"github.com/ai-memoryd/memoryd/internal/store"
)

// Dim is the embedding dimensionality used throughout the graph.
const Dim = 384

// Embedder turns text into a unit-L2 vector of Dim floats, deterministically
// across process restarts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Similarity is cosine similarity between two embeddings, re-exported so
// callers outside internal/store don't need to import it directly just for
// this one function.
func Similarity(a, b []float32) float64 {
	return store.CosineSimilarity(a, b)
}

// normalizeText makes embedding commutative over whitespace per §4.2:
// runs of whitespace collapse to a single space and the text is trimmed.
func normalizeText(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}
