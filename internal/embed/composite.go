package embed

import (
	"context"

	"github.com/sirupsen/logrus"
)

// FallbackEmbedder tries a primary Embedder first and falls back to a
// deterministic hash-based Embedder on any error (remote endpoint down,
// timeout, malformed response). This is the shape every caller in the
// graph should depend on — they should never see a raw HTTPEmbedder.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
	log      *logrus.Entry
}

// NewFallbackEmbedder wires a primary embedder (may be nil, meaning no
// remote endpoint is configured) with the deterministic hash fallback.
func NewFallbackEmbedder(primary Embedder, log *logrus.Entry) *FallbackEmbedder {
	return &FallbackEmbedder{
		primary:  primary,
		fallback: NewHashEmbedder(),
		log:      log,
	}
}

// Embed tries the primary embedder and falls back on any error, logging
// the degradation so operators can see how often the remote model is
// being skipped.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.primary != nil {
		v, err := f.primary.Embed(ctx, text)
		if err == nil {
			return v, nil
		}
		f.log.WithError(err).Warn("primary embedder failed, using hash fallback")
	}
	return f.fallback.Embed(ctx, text)
}
