package engine

import (
	"context"
	"fmt"
)

// SnapshotNode is one node in a graph snapshot.
type SnapshotNode struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// SnapshotEdge is one edge in a graph snapshot. Both endpoints are
// guaranteed to be present in the snapshot's node list.
type SnapshotEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// GraphSnapshot is a bounded view of the graph for visualization.
type GraphSnapshot struct {
	Nodes     []SnapshotNode `json:"nodes"`
	Edges     []SnapshotEdge `json:"edges"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Snapshot returns up to SnapshotNodeCap nodes in creation order plus
// the edges between them. Edges touching an excluded node are excluded
// with it.
func (o *Orchestrator) Snapshot(ctx context.Context) (*GraphSnapshot, error) {
	limit := o.opts.SnapshotNodeCap

	nodes, err := o.graph.ListNodes(ctx, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	snap := &GraphSnapshot{}
	if len(nodes) > limit {
		nodes = nodes[:limit]
		snap.Truncated = true
	}

	included := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		included[node.ID] = true
		sn := SnapshotNode{ID: node.ID, Label: node.Label, Type: node.Type}
		if desc, ok := node.Properties["description"].(string); ok {
			sn.Description = desc
		}
		snap.Nodes = append(snap.Nodes, sn)
	}

	edges, err := o.graph.ListEdges(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	for _, edge := range edges {
		if included[edge.Source] && included[edge.Target] {
			snap.Edges = append(snap.Edges, SnapshotEdge{
				Source: edge.Source,
				Target: edge.Target,
				Label:  edge.Relationship,
			})
		}
	}
	return snap, nil
}
