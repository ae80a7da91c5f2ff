package hybridrag

import "time"

// DefaultEdgeWeight is the weight assigned to edges created without an
// explicit weight. Only shortest-path search consumes weights.
const DefaultEdgeWeight = 1.0

// Properties is an open mapping of string keys to JSON-serializable values
// (scalars, lists, nested maps). It is the schemaless extension point on
// nodes, edges, documents and chunks; specific keys are validated only at
// the boundary where they are read.
type Properties map[string]any

// Copy returns a shallow copy of the property map. A nil receiver yields an
// empty, non-nil map so callers can mutate the result.
func (p Properties) Copy() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Node is an entity in the knowledge graph. Labels are display names and are
// not guaranteed unique; Type is an open-ended category tag such as
// "person", "organization" or "technology". The embedding is absent until
// computed by the embedding collaborator.
type Node struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Type       string     `json:"type,omitempty"`
	Properties Properties `json:"properties,omitempty"`
	Embedding  []float32  `json:"embedding,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Edge is a directed, labeled, weighted relationship between two nodes.
// The (Source, Target, Relationship) triple is unique: distinct relationship
// labels between the same pair are allowed, duplicates of the same label are
// not. Connectivity traversal treats edges as undirected; shortest-path
// search follows them source to target only.
type Edge struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Target       string     `json:"target"`
	Relationship string     `json:"relationship"`
	Properties   Properties `json:"properties,omitempty"`
	Weight       float64    `json:"weight"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Document is a source document owned by the document store.
type Document struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Metadata  Properties `json:"metadata,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Chunk is a segment of a source document, independently embedded for
// retrieval. Ordinals are unique within a document and reflect source
// order; chunks are never re-ordered after creation.
type Chunk struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Ordinal    int        `json:"ordinal"`
	Content    string     `json:"content"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Metadata   Properties `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
