// Package store provides the persistence layer for the hybrid retrieval
// engine: an in-memory store used as the default and as the test fake, a
// SQLite store for embedded persistence, a Redis-backed graph store and a
// PostgreSQL document store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/hybridrag"
)

// MemoryStore is an in-memory implementation of both the graph store and the
// document store. It also exposes the embedding listings consumed by the
// vector index. Safe for concurrent use; edge uniqueness is checked under
// the write lock so concurrent creates of the same triple see exactly one
// success.
type MemoryStore struct {
	mu sync.RWMutex

	nodes     map[string]*hybridrag.Node
	nodeOrder []string
	edges     map[string]*hybridrag.Edge
	edgeOrder []string
	triples   map[string]string // (source,target,relationship) -> edge id
	out       map[string][]string
	in        map[string][]string

	documents map[string]*hybridrag.Document
	chunks    map[string][]hybridrag.Chunk // document id -> chunks by ordinal
}

var (
	_ hybridrag.GraphStore    = (*MemoryStore)(nil)
	_ hybridrag.DocumentStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:     make(map[string]*hybridrag.Node),
		edges:     make(map[string]*hybridrag.Edge),
		triples:   make(map[string]string),
		out:       make(map[string][]string),
		in:        make(map[string][]string),
		documents: make(map[string]*hybridrag.Document),
		chunks:    make(map[string][]hybridrag.Chunk),
	}
}

func tripleKey(source, target, relationship string) string {
	return source + "\x00" + target + "\x00" + relationship
}

// CreateNode creates a node. Labels are not unique.
func (m *MemoryStore) CreateNode(ctx context.Context, label, typ string, props hybridrag.Properties) (*hybridrag.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	node := &hybridrag.Node{
		ID:         uuid.NewString(),
		Label:      label,
		Type:       typ,
		Properties: props.Copy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.nodes[node.ID] = node
	m.nodeOrder = append(m.nodeOrder, node.ID)

	copied := *node
	return &copied, nil
}

// GetNode returns the node with the given id.
func (m *MemoryStore) GetNode(ctx context.Context, id string) (*hybridrag.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, hybridrag.ErrNotFound)
	}
	copied := *node
	return &copied, nil
}

// FindNodeByLabel returns the first node (by creation order) with the exact
// label. Label ambiguity is a known design looseness: when labels collide
// the returned node is stable but not necessarily "the correct" one.
func (m *MemoryStore) FindNodeByLabel(ctx context.Context, label string) (*hybridrag.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.nodeOrder {
		if node, ok := m.nodes[id]; ok && node.Label == label {
			copied := *node
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("node with label %q: %w", label, hybridrag.ErrNotFound)
}

// UpdateNode replaces the properties and embedding of an existing node.
func (m *MemoryStore) UpdateNode(ctx context.Context, node *hybridrag.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.nodes[node.ID]
	if !ok {
		return fmt.Errorf("node %s: %w", node.ID, hybridrag.ErrNotFound)
	}
	existing.Label = node.Label
	existing.Type = node.Type
	existing.Properties = node.Properties.Copy()
	existing.Embedding = append([]float32(nil), node.Embedding...)
	existing.UpdatedAt = time.Now()
	return nil
}

// DeleteNode removes a node and every incident edge.
func (m *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, hybridrag.ErrNotFound)
	}
	delete(m.nodes, id)
	for i, nid := range m.nodeOrder {
		if nid == id {
			m.nodeOrder = append(m.nodeOrder[:i], m.nodeOrder[i+1:]...)
			break
		}
	}

	// Cascade: drop edges where the node is source or target.
	for _, eid := range append(append([]string(nil), m.out[id]...), m.in[id]...) {
		m.removeEdgeLocked(eid)
	}
	delete(m.out, id)
	delete(m.in, id)
	return nil
}

func (m *MemoryStore) removeEdgeLocked(id string) {
	edge, ok := m.edges[id]
	if !ok {
		return
	}
	delete(m.edges, id)
	delete(m.triples, tripleKey(edge.Source, edge.Target, edge.Relationship))
	m.out[edge.Source] = removeString(m.out[edge.Source], id)
	m.in[edge.Target] = removeString(m.in[edge.Target], id)
	m.edgeOrder = removeString(m.edgeOrder, id)
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// CreateEdge creates a directed edge between two existing nodes.
func (m *MemoryStore) CreateEdge(ctx context.Context, source, target, relationship string, props hybridrag.Properties, weight float64) (*hybridrag.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[source]; !ok {
		return nil, fmt.Errorf("edge source %s: %w", source, hybridrag.ErrReference)
	}
	if _, ok := m.nodes[target]; !ok {
		return nil, fmt.Errorf("edge target %s: %w", target, hybridrag.ErrReference)
	}

	key := tripleKey(source, target, relationship)
	if _, ok := m.triples[key]; ok {
		return nil, fmt.Errorf("edge %s -[%s]-> %s: %w", source, relationship, target, hybridrag.ErrDuplicate)
	}

	if weight == 0 {
		weight = hybridrag.DefaultEdgeWeight
	}
	if weight < 0 {
		return nil, fmt.Errorf("edge weight %v is negative: %w", weight, hybridrag.ErrInvalidRequest)
	}
	edge := &hybridrag.Edge{
		ID:           uuid.NewString(),
		Source:       source,
		Target:       target,
		Relationship: relationship,
		Properties:   props.Copy(),
		Weight:       weight,
		CreatedAt:    time.Now(),
	}
	m.edges[edge.ID] = edge
	m.edgeOrder = append(m.edgeOrder, edge.ID)
	m.triples[key] = edge.ID
	m.out[source] = append(m.out[source], edge.ID)
	m.in[target] = append(m.in[target], edge.ID)

	copied := *edge
	return &copied, nil
}

// Edges returns the edges incident to a node, in either direction.
func (m *MemoryStore) Edges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]hybridrag.Edge, 0, len(m.out[nodeID])+len(m.in[nodeID]))
	for _, eid := range m.out[nodeID] {
		out = append(out, *m.edges[eid])
	}
	for _, eid := range m.in[nodeID] {
		out = append(out, *m.edges[eid])
	}
	return out, nil
}

// OutEdges returns the edges whose source is the node.
func (m *MemoryStore) OutEdges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]hybridrag.Edge, 0, len(m.out[nodeID]))
	for _, eid := range m.out[nodeID] {
		out = append(out, *m.edges[eid])
	}
	return out, nil
}

// ListNodes returns up to limit nodes in creation order.
func (m *MemoryStore) ListNodes(ctx context.Context, limit int) ([]hybridrag.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.nodeOrder)
	if limit > 0 && limit < n {
		n = limit
	}
	nodes := make([]hybridrag.Node, 0, n)
	for _, id := range m.nodeOrder[:n] {
		nodes = append(nodes, *m.nodes[id])
	}
	return nodes, nil
}

// ListEdges returns up to limit edges in creation order.
func (m *MemoryStore) ListEdges(ctx context.Context, limit int) ([]hybridrag.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.edgeOrder)
	if limit > 0 && limit < n {
		n = limit
	}
	edges := make([]hybridrag.Edge, 0, n)
	for _, id := range m.edgeOrder[:n] {
		edges = append(edges, *m.edges[id])
	}
	return edges, nil
}

// InsertDocument stores a document, assigning an id if missing.
func (m *MemoryStore) InsertDocument(ctx context.Context, doc *hybridrag.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	copied := *doc
	m.documents[doc.ID] = &copied
	return nil
}

// InsertChunks stores chunks for an existing document, enforcing ordinal
// uniqueness within the document.
func (m *MemoryStore) InsertChunks(ctx context.Context, chunks []hybridrag.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type docOrdinal struct {
		documentID string
		ordinal    int
	}
	seen := make(map[docOrdinal]bool, len(chunks))
	for _, chunk := range chunks {
		if _, ok := m.documents[chunk.DocumentID]; !ok {
			return fmt.Errorf("chunk document %s: %w", chunk.DocumentID, hybridrag.ErrReference)
		}
		key := docOrdinal{chunk.DocumentID, chunk.Ordinal}
		if seen[key] {
			return fmt.Errorf("chunk ordinal %d in document %s: %w", chunk.Ordinal, chunk.DocumentID, hybridrag.ErrDuplicate)
		}
		seen[key] = true
		for _, existing := range m.chunks[chunk.DocumentID] {
			if existing.Ordinal == chunk.Ordinal {
				return fmt.Errorf("chunk ordinal %d in document %s: %w", chunk.Ordinal, chunk.DocumentID, hybridrag.ErrDuplicate)
			}
		}
	}
	for _, chunk := range chunks {
		if chunk.ID == "" {
			chunk.ID = uuid.NewString()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}
		m.chunks[chunk.DocumentID] = append(m.chunks[chunk.DocumentID], chunk)
		sort.Slice(m.chunks[chunk.DocumentID], func(i, j int) bool {
			return m.chunks[chunk.DocumentID][i].Ordinal < m.chunks[chunk.DocumentID][j].Ordinal
		})
	}
	return nil
}

// GetDocument returns a document by id.
func (m *MemoryStore) GetDocument(ctx context.Context, id string) (*hybridrag.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, hybridrag.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

// ListChunks returns a document's chunks ordered by ordinal.
func (m *MemoryStore) ListChunks(ctx context.Context, documentID string) ([]hybridrag.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]hybridrag.Chunk(nil), m.chunks[documentID]...), nil
}

// EmbeddedNodes returns the nodes that carry an embedding. Consumed by the
// vector index.
func (m *MemoryStore) EmbeddedNodes(ctx context.Context) ([]hybridrag.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []hybridrag.Node
	for _, id := range m.nodeOrder {
		if node := m.nodes[id]; len(node.Embedding) > 0 {
			nodes = append(nodes, *node)
		}
	}
	return nodes, nil
}

// EmbeddedChunks returns the chunks that carry an embedding.
func (m *MemoryStore) EmbeddedChunks(ctx context.Context) ([]hybridrag.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chunks []hybridrag.Chunk
	for _, docChunks := range m.chunks {
		for _, chunk := range docChunks {
			if len(chunk.Embedding) > 0 {
				chunks = append(chunks, chunk)
			}
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}
