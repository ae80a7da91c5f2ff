package vector

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/hybridrag"
	"github.com/smallnest/hybridrag/store"
)

func TestCosine(t *testing.T) {
	score, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	score, err = Cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, score, 1e-9)

	score, err = Cosine([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = Cosine([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, hybridrag.ErrConfiguration)
}

func seedChunks(t *testing.T, s *store.MemoryStore, embeddings ...[]float32) {
	t.Helper()
	ctx := context.Background()
	doc := &hybridrag.Document{Title: "doc"}
	require.NoError(t, s.InsertDocument(ctx, doc))
	chunks := make([]hybridrag.Chunk, len(embeddings))
	for i, emb := range embeddings {
		chunks[i] = hybridrag.Chunk{DocumentID: doc.ID, Ordinal: i, Content: "chunk", Embedding: emb}
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))
}

func TestSearchThresholdAndOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// Against query (1,0): similarities 0.9..., 0.75..., 0.6... by angle.
	// Use exact constructions: cos = x component for unit vectors.
	seedChunks(t, s,
		[]float32{0.9, sqrt32(1 - 0.9*0.9)},
		[]float32{0.6, sqrt32(1 - 0.6*0.6)},
		[]float32{0.75, sqrt32(1 - 0.75*0.75)},
	)

	ix := NewIndex(s)
	matches, err := ix.Search(ctx, []float32{1, 0}, ScopeChunks, 0.7, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.75, matches[1].Score, 1e-6)
	for _, m := range matches {
		assert.Greater(t, m.Score, 0.7)
		assert.NotNil(t, m.Chunk)
	}
}

func TestSearchThresholdIsStrict(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedChunks(t, s, []float32{1, 0})

	ix := NewIndex(s)
	// Similarity exactly 1.0 against threshold 1.0 is filtered out.
	matches, err := ix.Search(ctx, []float32{1, 0}, ScopeChunks, 1.0, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchLimit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedChunks(t, s, []float32{1, 0}, []float32{0.9, 0.1}, []float32{0.8, 0.2})

	ix := NewIndex(s)
	matches, err := ix.Search(ctx, []float32{1, 0}, ScopeChunks, 0, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestSearchNodesScope(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	node, err := s.CreateNode(ctx, "Apollo", "concept", nil)
	require.NoError(t, err)
	node.Embedding = []float32{1, 0}
	require.NoError(t, s.UpdateNode(ctx, node))
	// Node without embedding is never a candidate.
	_, err = s.CreateNode(ctx, "Gemini", "concept", nil)
	require.NoError(t, err)

	ix := NewIndex(s)
	matches, err := ix.Search(ctx, []float32{1, 0}, ScopeNodes, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, node.ID, matches[0].ID)
	assert.NotNil(t, matches[0].Node)
}

func TestSearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedChunks(t, s, []float32{1, 0, 0})

	ix := NewIndex(s)
	_, err := ix.Search(ctx, []float32{1, 0}, ScopeChunks, 0, 10)
	assert.ErrorIs(t, err, hybridrag.ErrConfiguration)
}

func TestSearchBadScope(t *testing.T) {
	ix := NewIndex(store.NewMemoryStore())
	_, err := ix.Search(context.Background(), []float32{1}, Scope("documents"), 0, 10)
	assert.ErrorIs(t, err, hybridrag.ErrConfiguration)
}

func sqrt32(v float64) float32 {
	return float32(math.Sqrt(v))
}
