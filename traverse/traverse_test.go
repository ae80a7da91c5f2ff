package traverse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/hybridrag"
	"github.com/smallnest/hybridrag/store"
)

// buildTriangle builds A->B (x, 1), B->C (y, 1), A->C (z, 5) and returns
// the store plus the three nodes.
func buildTriangle(t *testing.T) (*store.MemoryStore, *hybridrag.Node, *hybridrag.Node, *hybridrag.Node) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	a, err := s.CreateNode(ctx, "A", "", nil)
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "B", "", nil)
	require.NoError(t, err)
	c, err := s.CreateNode(ctx, "C", "", nil)
	require.NoError(t, err)

	_, err = s.CreateEdge(ctx, a.ID, b.ID, "x", nil, 1)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, b.ID, c.ID, "y", nil, 1)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, a.ID, c.ID, "z", nil, 5)
	require.NoError(t, err)

	return s, a, b, c
}

func depthOf(results []Reachable, id string) (int, bool) {
	for _, r := range results {
		if r.Node.ID == id {
			return r.Depth, true
		}
	}
	return 0, false
}

func TestConnectedDepthBound(t *testing.T) {
	ctx := context.Background()
	s, a, b, c := buildTriangle(t)

	// Depth 1 from A over the triangle: A at 0, B at 1, C at 1 (direct A->C
	// edge). Remove the direct edge to exercise the bound.
	require.NoError(t, s.DeleteNode(ctx, c.ID))
	c2, err := s.CreateNode(ctx, "C", "", nil)
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, b.ID, c2.ID, "y", nil, 1)
	require.NoError(t, err)

	results, err := Connected(ctx, s, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	d, ok := depthOf(results, a.ID)
	require.True(t, ok)
	assert.Equal(t, 0, d)
	d, ok = depthOf(results, b.ID)
	require.True(t, ok)
	assert.Equal(t, 1, d)
	_, ok = depthOf(results, c2.ID)
	assert.False(t, ok, "C is at depth 2 and must be excluded")
}

func TestConnectedMinDepthDedup(t *testing.T) {
	ctx := context.Background()
	s, a, _, c := buildTriangle(t)

	// C is reachable at depth 1 (A->C) and depth 2 (A->B->C); only the
	// minimum-depth occurrence is kept.
	results, err := Connected(ctx, s, a.ID, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	seen := map[string]int{}
	for _, r := range results {
		seen[r.Node.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "node %s appears more than once", id)
	}
	d, _ := depthOf(results, c.ID)
	assert.Equal(t, 1, d)
}

func TestConnectedStartNeverDeeper(t *testing.T) {
	ctx := context.Background()
	s, a, _, _ := buildTriangle(t)

	results, err := Connected(ctx, s, a.ID, 5)
	require.NoError(t, err)
	for _, r := range results {
		if r.Node.ID == a.ID {
			assert.Equal(t, 0, r.Depth)
		}
	}
}

func TestConnectedUndirected(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := s.CreateNode(ctx, "A", "", nil)
	b, _ := s.CreateNode(ctx, "B", "", nil)
	_, err := s.CreateEdge(ctx, a.ID, b.ID, "x", nil, 1)
	require.NoError(t, err)

	fromTarget, err := Connected(ctx, s, b.ID, 1)
	require.NoError(t, err)
	assert.Len(t, fromTarget, 2, "edge followed against its direction")

	// Adding the reverse-direction duplicate is a no-op on the node set.
	_, err = s.CreateEdge(ctx, b.ID, a.ID, "x", nil, 1)
	require.NoError(t, err)
	again, err := Connected(ctx, s, b.ID, 1)
	require.NoError(t, err)
	assert.Len(t, again, len(fromTarget))
}

func TestConnectedOrderedByNodeID(t *testing.T) {
	ctx := context.Background()
	s, a, _, _ := buildTriangle(t)

	results, err := Connected(ctx, s, a.ID, 3)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Node.ID, results[i].Node.ID)
	}
}

func TestConnectedMissingStart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := Connected(ctx, s, "ghost", 2)
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)
}

func TestConnectedPathsAreSimple(t *testing.T) {
	ctx := context.Background()
	s, a, _, _ := buildTriangle(t)

	results, err := Connected(ctx, s, a.ID, 4)
	require.NoError(t, err)
	for _, r := range results {
		seen := map[string]bool{}
		for _, id := range r.Path {
			assert.False(t, seen[id], "path revisits %s", id)
			seen[id] = true
		}
		assert.Equal(t, a.ID, r.Path[0])
		assert.Equal(t, r.Node.ID, r.Path[len(r.Path)-1])
		assert.Len(t, r.Path, r.Depth+1)
	}
}

func TestShortestPathPrefersLightPath(t *testing.T) {
	ctx := context.Background()
	s, a, b, c := buildTriangle(t)

	// A->B->C weighs 2, the direct A->C edge weighs 5.
	path, err := ShortestPath(ctx, s, a.ID, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, path.NodeIDs)
	assert.Equal(t, 2.0, path.TotalWeight)
}

func TestShortestPathDirected(t *testing.T) {
	ctx := context.Background()
	s, a, _, c := buildTriangle(t)

	// All edges point away from A; C cannot reach A.
	_, err := ShortestPath(ctx, s, c.ID, a.ID, 5)
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)
}

func TestShortestPathDepthBound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := s.CreateNode(ctx, "A", "", nil)
	b, _ := s.CreateNode(ctx, "B", "", nil)
	c, _ := s.CreateNode(ctx, "C", "", nil)
	_, _ = s.CreateEdge(ctx, a.ID, b.ID, "x", nil, 1)
	_, _ = s.CreateEdge(ctx, b.ID, c.ID, "y", nil, 1)

	_, err := ShortestPath(ctx, s, a.ID, c.ID, 1)
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)

	path, err := ShortestPath(ctx, s, a.ID, c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, path.TotalWeight)
}

func TestShortestPathMinimalAmongAll(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := s.CreateNode(ctx, "A", "", nil)
	b, _ := s.CreateNode(ctx, "B", "", nil)
	c, _ := s.CreateNode(ctx, "C", "", nil)
	d, _ := s.CreateNode(ctx, "D", "", nil)
	_, _ = s.CreateEdge(ctx, a.ID, b.ID, "r", nil, 1)
	_, _ = s.CreateEdge(ctx, b.ID, d.ID, "r", nil, 4)
	_, _ = s.CreateEdge(ctx, a.ID, c.ID, "r", nil, 2)
	_, _ = s.CreateEdge(ctx, c.ID, d.ID, "r", nil, 1)
	_, _ = s.CreateEdge(ctx, a.ID, d.ID, "r", nil, 10)

	path, err := ShortestPath(ctx, s, a.ID, d.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID, d.ID}, path.NodeIDs)
	assert.Equal(t, 3.0, path.TotalWeight)
}

func TestShortestPathDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := s.CreateNode(ctx, "A", "", nil)
	b, _ := s.CreateNode(ctx, "B", "", nil)
	c, _ := s.CreateNode(ctx, "C", "", nil)
	d, _ := s.CreateNode(ctx, "D", "", nil)
	// Two weight-2 paths A->B->D and A->C->D.
	_, _ = s.CreateEdge(ctx, a.ID, b.ID, "r", nil, 1)
	_, _ = s.CreateEdge(ctx, b.ID, d.ID, "r", nil, 1)
	_, _ = s.CreateEdge(ctx, a.ID, c.ID, "r", nil, 1)
	_, _ = s.CreateEdge(ctx, c.ID, d.ID, "r", nil, 1)

	first, err := ShortestPath(ctx, s, a.ID, d.ID, 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ShortestPath(ctx, s, a.ID, d.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, first.NodeIDs, again.NodeIDs)
	}
	assert.Equal(t, 2.0, first.TotalWeight)
}

func TestShortestPathMissingStart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := ShortestPath(ctx, s, "ghost", "also-ghost", 3)
	assert.ErrorIs(t, err, hybridrag.ErrNotFound)
}
