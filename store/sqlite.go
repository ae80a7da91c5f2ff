package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/hybridrag"
)

// SqliteStore persists the graph and document corpus in SQLite. It
// implements both GraphStore and DocumentStore, so a single file can
// back an entire engine.
type SqliteStore struct {
	db *sql.DB
}

var (
	_ hybridrag.GraphStore    = (*SqliteStore)(nil)
	_ hybridrag.DocumentStore = (*SqliteStore)(nil)
)

// SqliteStoreOptions configuration for the SQLite connection.
type SqliteStoreOptions struct {
	Path string // database file, ":memory:" for in-memory
}

// NewSqliteStore opens the database and creates the schema if needed.
func NewSqliteStore(opts SqliteStoreOptions) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", opts.Path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	s := &SqliteStore{db: db}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables and indexes if they don't exist.
func (s *SqliteStore) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			type TEXT NOT NULL,
			properties TEXT,
			embedding TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes (label);

		CREATE TABLE IF NOT EXISTS edges (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL REFERENCES nodes(id),
			target TEXT NOT NULL REFERENCES nodes(id),
			relationship TEXT NOT NULL,
			properties TEXT,
			weight REAL NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (source, target, relationship)
		);
		CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source);
		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target);

		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE (document_id, ordinal)
		);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// CreateNode inserts a node and returns it.
func (s *SqliteStore) CreateNode(ctx context.Context, label, typ string, props hybridrag.Properties) (*hybridrag.Node, error) {
	if label == "" {
		return nil, fmt.Errorf("node label is empty: %w", hybridrag.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	node := &hybridrag.Node{
		ID:         uuid.New().String(),
		Label:      label,
		Type:       typ,
		Properties: props.Copy(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	propsJSON, err := json.Marshal(node.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, label, type, properties, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		node.ID, node.Label, node.Type, string(propsJSON), node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}
	return node, nil
}

// GetNode returns the node with the given id.
func (s *SqliteStore) GetNode(ctx context.Context, id string) (*hybridrag.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, type, properties, embedding, created_at, updated_at FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

// FindNodeByLabel returns the oldest node carrying the label.
func (s *SqliteStore) FindNodeByLabel(ctx context.Context, label string) (*hybridrag.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, type, properties, embedding, created_at, updated_at
		 FROM nodes WHERE label = ? ORDER BY created_at, id LIMIT 1`, label)
	return scanNode(row)
}

// UpdateNode replaces the node's mutable fields.
func (s *SqliteStore) UpdateNode(ctx context.Context, node *hybridrag.Node) error {
	propsJSON, err := json.Marshal(node.Properties.Copy())
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	embJSON, err := marshalEmbedding(node.Embedding)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET label = ?, type = ?, properties = ?, embedding = ?, updated_at = ? WHERE id = ?`,
		node.Label, node.Type, string(propsJSON), embJSON, time.Now().UTC(), node.ID)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", node.ID, hybridrag.ErrNotFound)
	}
	return nil
}

// DeleteNode removes a node and every edge incident to it.
func (s *SqliteStore) DeleteNode(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source = ? OR target = ?`, id, id); err != nil {
		return fmt.Errorf("failed to delete incident edges: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, hybridrag.ErrNotFound)
	}
	return tx.Commit()
}

// CreateEdge inserts an edge between two existing nodes.
func (s *SqliteStore) CreateEdge(ctx context.Context, source, target, relationship string, props hybridrag.Properties, weight float64) (*hybridrag.Edge, error) {
	if relationship == "" {
		return nil, fmt.Errorf("edge relationship is empty: %w", hybridrag.ErrInvalidRequest)
	}
	if weight == 0 {
		weight = hybridrag.DefaultEdgeWeight
	}
	if weight < 0 {
		return nil, fmt.Errorf("edge weight %v is negative: %w", weight, hybridrag.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	edge := &hybridrag.Edge{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		Relationship: relationship,
		Properties:   props.Copy(),
		Weight:       weight,
		CreatedAt:    now,
	}

	propsJSON, err := json.Marshal(edge.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edges (id, source, target, relationship, properties, weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.Source, edge.Target, edge.Relationship, string(propsJSON), edge.Weight, edge.CreatedAt)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint"):
			return nil, fmt.Errorf("edge %s-[%s]->%s: %w", source, relationship, target, hybridrag.ErrDuplicate)
		case strings.Contains(msg, "FOREIGN KEY constraint"):
			return nil, fmt.Errorf("edge endpoints %s, %s: %w", source, target, hybridrag.ErrReference)
		}
		return nil, fmt.Errorf("failed to insert edge: %w", err)
	}
	return edge, nil
}

// Edges returns every edge incident to the node, in either direction.
func (s *SqliteStore) Edges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	return s.queryEdges(ctx,
		`SELECT id, source, target, relationship, properties, weight, created_at
		 FROM edges WHERE source = ? OR target = ? ORDER BY created_at, id`, nodeID, nodeID)
}

// OutEdges returns the edges whose source is the node.
func (s *SqliteStore) OutEdges(ctx context.Context, nodeID string) ([]hybridrag.Edge, error) {
	return s.queryEdges(ctx,
		`SELECT id, source, target, relationship, properties, weight, created_at
		 FROM edges WHERE source = ? ORDER BY created_at, id`, nodeID)
}

// ListNodes returns up to limit nodes in creation order. A non-positive
// limit returns all nodes.
func (s *SqliteStore) ListNodes(ctx context.Context, limit int) ([]hybridrag.Node, error) {
	query := `SELECT id, label, type, properties, embedding, created_at, updated_at
		 FROM nodes ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []hybridrag.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// ListEdges returns up to limit edges in creation order. A non-positive
// limit returns all edges.
func (s *SqliteStore) ListEdges(ctx context.Context, limit int) ([]hybridrag.Edge, error) {
	query := `SELECT id, source, target, relationship, properties, weight, created_at
		 FROM edges ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEdges(ctx, query, args...)
}

// InsertDocument stores a document.
func (s *SqliteStore) InsertDocument(ctx context.Context, doc *hybridrag.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, string(metaJSON), doc.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("document %s: %w", doc.ID, hybridrag.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// InsertChunks stores chunks for existing documents in one transaction,
// so a rejected chunk leaves nothing behind.
func (s *SqliteStore) InsertChunks(ctx context.Context, chunks []hybridrag.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range chunks {
		chunk := &chunks[i]

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, chunk.DocumentID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check document: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("chunk document %s: %w", chunk.DocumentID, hybridrag.ErrReference)
		}

		if chunk.ID == "" {
			chunk.ID = uuid.New().String()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}

		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		embJSON, err := marshalEmbedding(chunk.Embedding)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, ordinal, content, embedding, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Content, embJSON, string(metaJSON), chunk.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("chunk ordinal %d in document %s: %w", chunk.Ordinal, chunk.DocumentID, hybridrag.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

// GetDocument returns the document with the given id.
func (s *SqliteStore) GetDocument(ctx context.Context, id string) (*hybridrag.Document, error) {
	var (
		doc      hybridrag.Document
		metaJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, metadata, created_at FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Title, &doc.Content, &metaJSON, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, hybridrag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if err := unmarshalJSON(metaJSON, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListChunks returns the chunks of a document in ordinal order.
func (s *SqliteStore) ListChunks(ctx context.Context, documentID string) ([]hybridrag.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []hybridrag.Chunk
	for rows.Next() {
		var (
			chunk    hybridrag.Chunk
			embJSON  sql.NullString
			metaJSON sql.NullString
		)
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &embJSON, &metaJSON, &chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := unmarshalJSON(embJSON, &chunk.Embedding); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(metaJSON, &chunk.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// EmbeddedNodes returns the nodes that carry an embedding.
func (s *SqliteStore) EmbeddedNodes(ctx context.Context) ([]hybridrag.Node, error) {
	nodes, err := s.ListNodes(ctx, 0)
	if err != nil {
		return nil, err
	}
	embedded := nodes[:0]
	for _, node := range nodes {
		if len(node.Embedding) > 0 {
			embedded = append(embedded, node)
		}
	}
	return embedded, nil
}

// EmbeddedChunks returns every chunk that carries an embedding, ordered
// by chunk id.
func (s *SqliteStore) EmbeddedChunks(ctx context.Context) ([]hybridrag.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded chunks: %w", err)
	}
	defer rows.Close()

	var chunks []hybridrag.Chunk
	for rows.Next() {
		var (
			chunk    hybridrag.Chunk
			embJSON  sql.NullString
			metaJSON sql.NullString
		)
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &embJSON, &metaJSON, &chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := unmarshalJSON(embJSON, &chunk.Embedding); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(metaJSON, &chunk.Metadata); err != nil {
			return nil, err
		}
		if len(chunk.Embedding) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*hybridrag.Node, error) {
	var (
		node      hybridrag.Node
		propsJSON sql.NullString
		embJSON   sql.NullString
	)
	err := row.Scan(&node.ID, &node.Label, &node.Type, &propsJSON, &embJSON, &node.CreatedAt, &node.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node: %w", hybridrag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	if err := unmarshalJSON(propsJSON, &node.Properties); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(embJSON, &node.Embedding); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *SqliteStore) queryEdges(ctx context.Context, query string, args ...any) ([]hybridrag.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []hybridrag.Edge
	for rows.Next() {
		var (
			edge      hybridrag.Edge
			propsJSON sql.NullString
		)
		err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.Relationship, &propsJSON, &edge.Weight, &edge.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if err := unmarshalJSON(propsJSON, &edge.Properties); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func marshalEmbedding(embedding []float32) (any, error) {
	if embedding == nil {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON[T any](src sql.NullString, dst *T) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal stored JSON: %w", err)
	}
	return nil
}
