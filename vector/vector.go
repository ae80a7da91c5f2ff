// Package vector implements similarity search over node and chunk
// embeddings. Scoring is cosine similarity; candidates without an embedding
// are skipped, results at or below the threshold are dropped, and the rest
// are returned in descending score order.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/smallnest/hybridrag"
)

// Scope selects which entity family a search runs over.
type Scope string

const (
	// ScopeNodes searches graph node embeddings.
	ScopeNodes Scope = "nodes"
	// ScopeChunks searches document chunk embeddings.
	ScopeChunks Scope = "chunks"
)

// Source lists the embedded entities a search runs over. The memory and
// SQLite stores implement it.
type Source interface {
	EmbeddedNodes(ctx context.Context) ([]hybridrag.Node, error)
	EmbeddedChunks(ctx context.Context) ([]hybridrag.Chunk, error)
}

// Match is one similarity search result. Exactly one of Node or Chunk is
// set, depending on the search scope.
type Match struct {
	ID    string           `json:"id"`
	Score float64          `json:"score"`
	Node  *hybridrag.Node  `json:"node,omitempty"`
	Chunk *hybridrag.Chunk `json:"chunk,omitempty"`
}

// Index answers nearest-neighbor queries over a Source.
type Index struct {
	source Source
}

// NewIndex creates an index over the given source.
func NewIndex(source Source) *Index {
	return &Index{source: source}
}

// Search scores every embedded entity in scope against the query embedding,
// drops results with similarity <= threshold, orders the rest by similarity
// descending (ties by id for determinism) and truncates to limit. A length
// mismatch between the query and any stored embedding is an
// ErrConfiguration, never silently tolerated.
func (ix *Index) Search(ctx context.Context, query []float32, scope Scope, threshold float64, limit int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query embedding: %w", hybridrag.ErrConfiguration)
	}

	var matches []Match
	switch scope {
	case ScopeNodes:
		nodes, err := ix.source.EmbeddedNodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list node embeddings: %w", err)
		}
		for i := range nodes {
			score, err := Cosine(query, nodes[i].Embedding)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", nodes[i].ID, err)
			}
			if score > threshold {
				matches = append(matches, Match{ID: nodes[i].ID, Score: score, Node: &nodes[i]})
			}
		}
	case ScopeChunks:
		chunks, err := ix.source.EmbeddedChunks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list chunk embeddings: %w", err)
		}
		for i := range chunks {
			score, err := Cosine(query, chunks[i].Embedding)
			if err != nil {
				return nil, fmt.Errorf("chunk %s: %w", chunks[i].ID, err)
			}
			if score > threshold {
				matches = append(matches, Match{ID: chunks[i].ID, Score: score, Chunk: &chunks[i]})
			}
		}
	default:
		return nil, fmt.Errorf("unknown scope %q: %w", scope, hybridrag.ErrConfiguration)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Cosine computes cosine similarity between two vectors. Vectors must have
// the same length; a mismatch is an ErrConfiguration. A zero vector scores
// 0 against everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch %d != %d: %w", len(a), len(b), hybridrag.ErrConfiguration)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
