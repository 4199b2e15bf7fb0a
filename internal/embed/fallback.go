package embed

import (
	"context"
	"strings"

	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/minio/highwayhash"
)

// hashKey is a fixed, checked-in 32-byte HighwayHash key. It is NOT a
// secret: its only job is to pin the hash function to a value that does
// not change between process restarts, unlike Go's randomized built-in
// map/string hashing (see SPEC_FULL.md §9).
var hashKey = [32]byte{
	0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x64, 0x2d,
	0x74, 0x66, 0x69, 0x64, 0x66, 0x2d, 0x73, 0x65,
	0x65, 0x64, 0x2d, 0x30, 0x31, 0x02, 0x03, 0x04,
	0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c,
}

// HashEmbedder is a deterministic, seed-free fallback Embedder: it hashes
// whitespace-delimited tokens into buckets of a Dim-length vector (a
// HighwayHash-backed feature-hashing / "hashing trick" scheme, the
// TF-style bag-of-words fallback required when no real embedding model is
// reachable). Two processes started at different times, with different
// map-iteration orders, produce byte-identical vectors for identical
// text.
type HashEmbedder struct{}

// NewHashEmbedder returns a ready-to-use fallback Embedder. It never
// fails and never blocks on external state.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed never returns an error: it is the last-resort path invoked when
// the primary Embedder is unavailable.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return HashVector(text), nil
}

// HashVector computes the deterministic fallback embedding directly,
// without the context/error ceremony, for callers (tests, classify
// scoring) that don't need the Embedder interface.
func HashVector(text string) []float32 {
	tokens := strings.Fields(normalizeText(strings.ToLower(text)))
	vec := make([]float32, Dim)
	if len(tokens) == 0 {
		return vec
	}
	counts := make(map[uint64]float32, len(tokens))
	for _, tok := range tokens {
		h := highwayhash.Sum64([]byte(tok), hashKey[:])
		bucket := h % uint64(Dim)
		sign := float32(1)
		if (h>>1)&1 == 1 {
			sign = -1
		}
		counts[bucket*2+uint64((h>>1)&1)] += sign
	}
	for bucketSign, weight := range counts {
		bucket := bucketSign / 2
		vec[bucket] += weight
	}
	return store.Normalize(vec)
}
