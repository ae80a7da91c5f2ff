package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/hybridrag"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s := NewRedisStore(RedisStoreOptions{Addr: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreNodeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	node, err := s.CreateNode(ctx, "Go", "language", hybridrag.Properties{"year": 2009})
	require.NoError(t, err)
	require.NotEmpty(t, node.ID)

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", got.Label)
	assert.Equal(t, "language", got.Type)

	byLabel, err := s.FindNodeByLabel(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, node.ID, byLabel.ID)

	node.Properties = hybridrag.Properties{"year": 2012}
	node.Embedding = []float32{0.1, 0.2}
	require.NoError(t, s.UpdateNode(ctx, node))

	updated, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, updated.Embedding)

	require.NoError(t, s.DeleteNode(ctx, node.ID))

	_, err = s.GetNode(ctx, node.ID)
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)
	_, err = s.FindNodeByLabel(ctx, "Go")
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)
}

func TestRedisStoreFindNodeByLabelOldestWins(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	first, err := s.CreateNode(ctx, "Go", "language", nil)
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, "Go", "board_game", nil)
	require.NoError(t, err)

	got, err := s.FindNodeByLabel(ctx, "Go")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestRedisStoreEdgeUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	a, err := s.CreateNode(ctx, "A", "thing", nil)
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "B", "thing", nil)
	require.NoError(t, err)

	edge, err := s.CreateEdge(ctx, a.ID, b.ID, "knows", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, hybridrag.DefaultEdgeWeight, edge.Weight)

	_, err = s.CreateEdge(ctx, a.ID, b.ID, "knows", nil, 2)
	assert.ErrorIs(t, err, hybridrag.ErrDuplicate)

	// Same endpoints under a different relationship is a distinct edge.
	_, err = s.CreateEdge(ctx, a.ID, b.ID, "likes", nil, 2)
	assert.NoError(t, err)

	edges, err := s.ListEdges(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestRedisStoreEdgeReference(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	a, err := s.CreateNode(ctx, "A", "thing", nil)
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, "missing", "knows", nil, 1)
	assert.ErrorIs(t, err, hybridrag.ErrReference)

	edges, err := s.ListEdges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestRedisStoreDeleteNodeCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	a, err := s.CreateNode(ctx, "A", "thing", nil)
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "B", "thing", nil)
	require.NoError(t, err)
	c, err := s.CreateNode(ctx, "C", "thing", nil)
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, b.ID, "knows", nil, 1)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, c.ID, b.ID, "knows", nil, 1)
	require.NoError(t, err)

	require.NoError(t, s.DeleteNode(ctx, b.ID))

	edges, err := s.ListEdges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, edges)

	// The freed triple may be claimed again.
	b2, err := s.CreateNode(ctx, "B", "thing", nil)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, a.ID, b2.ID, "knows", nil, 1)
	assert.NoError(t, err)
}

func TestRedisStoreAdjacency(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	a, err := s.CreateNode(ctx, "A", "thing", nil)
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "B", "thing", nil)
	require.NoError(t, err)
	c, err := s.CreateNode(ctx, "C", "thing", nil)
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, b.ID, "knows", nil, 1)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, c.ID, a.ID, "knows", nil, 1)
	require.NoError(t, err)

	out, err := s.OutEdges(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, b.ID, out[0].Target)

	incident, err := s.Edges(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, incident, 2)
}

func TestRedisStoreEmbeddedNodes(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	a, err := s.CreateNode(ctx, "A", "thing", nil)
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, "B", "thing", nil)
	require.NoError(t, err)

	a.Embedding = []float32{0.5, 0.5}
	require.NoError(t, s.UpdateNode(ctx, a))

	embedded, err := s.EmbeddedNodes(ctx)
	require.NoError(t, err)
	require.Len(t, embedded, 1)
	assert.Equal(t, a.ID, embedded[0].ID)
}
