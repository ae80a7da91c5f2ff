package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/hybridrag"
)

// LangchainEmbedder adapts a langchaingo embedder to the Embedder
// interface, so any provider langchaingo supports can back the index.
type LangchainEmbedder struct {
	inner     embeddings.Embedder
	dimension int
}

var _ hybridrag.Embedder = (*LangchainEmbedder)(nil)

// NewLangchainEmbedder wraps a langchaingo embedder producing vectors of
// the given width.
func NewLangchainEmbedder(inner embeddings.Embedder, dimension int) *LangchainEmbedder {
	return &LangchainEmbedder{inner: inner, dimension: dimension}
}

// Embed delegates to the wrapped embedder and checks the vector width.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, truncate(text, MaxInputChars))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", hybridrag.ErrUnavailable, err)
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding dimension %d, expected %d: %w", len(vec), e.dimension, hybridrag.ErrConfiguration)
	}
	return vec, nil
}

// Dimension returns the fixed embedding width.
func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}
