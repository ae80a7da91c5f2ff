// Package traverse implements graph traversal over a hybridrag.GraphStore:
// bounded-depth connected-node discovery with undirected semantics, and
// directed weighted shortest-path search over simple paths.
package traverse

import (
	"context"
	"fmt"
	"sort"

	"github.com/smallnest/hybridrag"
)

// MaxPathDepth caps shortest-path exploration. The search enumerates simple
// paths, which is worst-case exponential in depth; it stays tractable only
// because depth is small and graphs are modest in size.
const MaxPathDepth = 10

// Reachable is a node discovered by Connected, with the depth at which it
// was first reached and the node ids of one minimum-depth path from the
// start node (start node included).
type Reachable struct {
	Node  hybridrag.Node `json:"node"`
	Depth int            `json:"depth"`
	Path  []string       `json:"path"`
}

// Path is the result of a shortest-path search.
type Path struct {
	NodeIDs     []string `json:"node_ids"`
	TotalWeight float64  `json:"total_weight"`
}

// Connected performs breadth-first discovery of the nodes connected to
// nodeID, treating edges as undirected. The start node appears at depth 0.
// Each reachable node appears exactly once, at its minimum depth; nodes
// beyond maxDepth are neither explored nor returned. Results are ordered by
// node id ascending. Returns ErrNotFound when the start node is missing.
func Connected(ctx context.Context, store hybridrag.GraphStore, nodeID string, maxDepth int) ([]Reachable, error) {
	start, err := store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("connected from %s: %w", nodeID, err)
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	best := map[string]Reachable{
		start.ID: {Node: *start, Depth: 0, Path: []string{start.ID}},
	}
	frontier := []string{start.ID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			edges, err := store.Edges(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("edges of %s: %w", id, err)
			}
			parent := best[id]
			for _, edge := range edges {
				neighbor := edge.Target
				if neighbor == id {
					neighbor = edge.Source
				}
				// BFS visits each node first at its minimum depth, so a
				// seen node is never re-added; this also keeps paths simple.
				if _, seen := best[neighbor]; seen {
					continue
				}
				node, err := store.GetNode(ctx, neighbor)
				if err != nil {
					// The edge may race with a concurrent delete; skip.
					continue
				}
				path := append(append([]string(nil), parent.Path...), neighbor)
				best[neighbor] = Reachable{Node: *node, Depth: depth + 1, Path: path}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	results := make([]Reachable, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Node.ID != results[j].Node.ID {
			return results[i].Node.ID < results[j].Node.ID
		}
		return results[i].Depth < results[j].Depth
	})
	return results, nil
}

// ShortestPath finds the minimum-weight directed path from startID to endID
// using at most maxDepth edges. Paths are simple (no repeated node); ties on
// total weight are broken by first discovery under a deterministic edge
// order (ascending target id, then relationship). Returns ErrNotFound when
// the start node is missing or no path exists within the bound.
func ShortestPath(ctx context.Context, store hybridrag.GraphStore, startID, endID string, maxDepth int) (*Path, error) {
	if _, err := store.GetNode(ctx, startID); err != nil {
		return nil, fmt.Errorf("shortest path from %s: %w", startID, err)
	}
	if maxDepth <= 0 || maxDepth > MaxPathDepth {
		maxDepth = MaxPathDepth
	}

	search := &pathSearch{
		ctx:      ctx,
		store:    store,
		endID:    endID,
		maxDepth: maxDepth,
		onPath:   map[string]bool{startID: true},
		path:     []string{startID},
	}
	if err := search.visit(startID, 0); err != nil {
		return nil, err
	}
	if search.best == nil {
		return nil, fmt.Errorf("no path %s -> %s within %d hops: %w", startID, endID, maxDepth, hybridrag.ErrNotFound)
	}
	return search.best, nil
}

type pathSearch struct {
	ctx      context.Context
	store    hybridrag.GraphStore
	endID    string
	maxDepth int

	onPath map[string]bool
	path   []string
	weight float64
	best   *Path
}

func (s *pathSearch) visit(nodeID string, depth int) error {
	if nodeID == s.endID {
		// Strict comparison keeps the first-discovered path on ties.
		if s.best == nil || s.weight < s.best.TotalWeight {
			s.best = &Path{
				NodeIDs:     append([]string(nil), s.path...),
				TotalWeight: s.weight,
			}
		}
		return nil
	}
	if depth == s.maxDepth {
		return nil
	}

	edges, err := s.store.OutEdges(s.ctx, nodeID)
	if err != nil {
		return fmt.Errorf("out edges of %s: %w", nodeID, err)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Relationship < edges[j].Relationship
	})

	for _, edge := range edges {
		if s.onPath[edge.Target] {
			continue
		}
		// Prune: an extension can never improve on a strictly lighter best.
		if s.best != nil && s.weight+edge.Weight > s.best.TotalWeight {
			continue
		}
		s.onPath[edge.Target] = true
		s.path = append(s.path, edge.Target)
		s.weight += edge.Weight

		if err := s.visit(edge.Target, depth+1); err != nil {
			return err
		}

		s.weight -= edge.Weight
		s.path = s.path[:len(s.path)-1]
		delete(s.onPath, edge.Target)
	}
	return nil
}
