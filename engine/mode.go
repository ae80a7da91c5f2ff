// Package engine implements the mode-driven retrieval orchestrator. A
// request selects a mode, the mode fixes the set of operations the
// request may perform, a driver turns the conversation into a bounded
// step plan, and the orchestrator executes the plan step by step with
// per-step failure isolation and full provenance.
package engine

// Mode selects the retrieval strategy for a request.
type Mode string

const (
	// ModeVector answers from chunk similarity search only.
	ModeVector Mode = "vector"
	// ModeGraph answers from graph traversal and allows graph mutations.
	ModeGraph Mode = "graph"
	// ModeHybrid combines both strategies.
	ModeHybrid Mode = "hybrid"
)

// Operation identifies one retrieval or mutation step kind.
type Operation string

const (
	OpSearchChunks   Operation = "search_chunks"
	OpSearchNodes    Operation = "search_nodes"
	OpConnectedNodes Operation = "connected_nodes"
	OpCreateNode     Operation = "create_node"
	OpCreateEdge     Operation = "create_edge"
	OpGraphSnapshot  Operation = "graph_snapshot"
)

// capabilities is the fixed mode-to-operations table. It is resolved
// once at mode validation; a step whose operation is not in the
// request's row is dropped without trace.
var capabilities = map[Mode][]Operation{
	ModeVector: {OpSearchChunks},
	ModeGraph:  {OpConnectedNodes, OpCreateNode, OpCreateEdge, OpGraphSnapshot},
	ModeHybrid: {OpSearchChunks, OpSearchNodes, OpConnectedNodes, OpCreateNode, OpCreateEdge, OpGraphSnapshot},
}

// Capabilities returns the operations available in a mode, or nil for
// an unknown mode.
func Capabilities(mode Mode) []Operation {
	ops := capabilities[mode]
	out := make([]Operation, len(ops))
	copy(out, ops)
	return out
}

// IsMutation reports whether the operation changes graph state.
func IsMutation(op Operation) bool {
	return op == OpCreateNode || op == OpCreateEdge
}

func allowed(ops []Operation, op Operation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
