// Package embed provides implementations of the embedding-generation
// boundary: an OpenAI-backed embedder, an adapter for langchaingo
// embedders, and a Resilient wrapper that substitutes a flagged
// deterministic fallback vector when the collaborator fails.
package embed

import (
	"context"
	"fmt"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/hybridrag"
)

// MaxInputChars bounds the text sent to the embedding collaborator.
const MaxInputChars = 8000

// truncate cuts text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// OpenAIOptions configures an OpenAI embedder.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string                // optional, for OpenAI-compatible servers
	Model   openai.EmbeddingModel // default text-embedding-3-small
	// Dimension of the returned vectors, default 1536.
	Dimension int
}

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

var _ hybridrag.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from options.
func NewOpenAIEmbedder(opts OpenAIOptions) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = openai.SmallEmbedding3
	}
	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = 1536
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}
}

// Embed returns the embedding for text, truncated to MaxInputChars before
// the call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text, MaxInputChars)

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w: %w", hybridrag.ErrUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response empty: %w", hybridrag.ErrUnavailable)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding dimension %d, expected %d: %w", len(vec), e.dimension, hybridrag.ErrConfiguration)
	}
	return vec, nil
}

// Dimension returns the fixed embedding width.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}
