package hybridrag

import "context"

// GraphStore owns node and edge identity and referential integrity. All
// mutations are atomic per operation; concurrent creates of the same edge
// triple resolve to exactly one success and one ErrDuplicate.
type GraphStore interface {
	// CreateNode creates a node. Labels are not unique; creation always
	// succeeds unless the backing store is unavailable.
	CreateNode(ctx context.Context, label, typ string, props Properties) (*Node, error)

	// GetNode returns the node with the given id, or ErrNotFound.
	GetNode(ctx context.Context, id string) (*Node, error)

	// FindNodeByLabel returns a node with the given label (exact match).
	// When several nodes share the label, the first by creation order is
	// returned. ErrNotFound when no node matches.
	FindNodeByLabel(ctx context.Context, label string) (*Node, error)

	// UpdateNode replaces the properties and embedding of an existing
	// node. ErrNotFound when the node does not exist.
	UpdateNode(ctx context.Context, node *Node) error

	// DeleteNode removes a node and cascades to every incident edge.
	DeleteNode(ctx context.Context, id string) error

	// CreateEdge creates a directed edge. ErrReference when either
	// endpoint is missing; ErrDuplicate when the (source, target,
	// relationship) triple already exists. A zero weight is replaced by
	// DefaultEdgeWeight.
	CreateEdge(ctx context.Context, source, target, relationship string, props Properties, weight float64) (*Edge, error)

	// Edges returns every edge incident to the node, in either direction.
	Edges(ctx context.Context, nodeID string) ([]Edge, error)

	// OutEdges returns the edges whose source is the node.
	OutEdges(ctx context.Context, nodeID string) ([]Edge, error)

	// ListNodes returns up to limit nodes in creation order. A
	// non-positive limit returns all nodes.
	ListNodes(ctx context.Context, limit int) ([]Node, error)

	// ListEdges returns up to limit edges in creation order.
	ListEdges(ctx context.Context, limit int) ([]Edge, error)
}

// DocumentStore owns documents and their chunked, embedded segments. It
// references node ids never; chunk ids are owned here.
type DocumentStore interface {
	// InsertDocument stores a document. An empty ID is assigned.
	InsertDocument(ctx context.Context, doc *Document) error

	// InsertChunks stores chunks for an existing document. ErrReference
	// when the owning document is missing; ErrDuplicate when an ordinal
	// is already taken within the document.
	InsertChunks(ctx context.Context, chunks []Chunk) error

	// GetDocument returns a document by id, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// ListChunks returns a document's chunks ordered by ordinal.
	ListChunks(ctx context.Context, documentID string) ([]Chunk, error)
}

// Embedder turns text into a fixed-length numeric vector. Implementations
// live in the embed package; the engine consumes them through the flagged
// fallback wrapper so a collaborator failure never surfaces as a missing
// embedding downstream.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the fixed embedding width, e.g. 1536.
	Dimension() int
}
