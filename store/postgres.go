package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/hybridrag"
)

// DBPool defines the interface for the database connection pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresDocumentStore keeps documents and chunks in PostgreSQL.
// Chunk embeddings are stored as JSON arrays so no extension is
// required.
type PostgresDocumentStore struct {
	pool DBPool
}

var _ hybridrag.DocumentStore = (*PostgresDocumentStore)(nil)

// PostgresOptions configuration for the Postgres connection.
type PostgresOptions struct {
	ConnString string
}

// NewPostgresDocumentStore connects to Postgres and creates the schema.
func NewPostgresDocumentStore(ctx context.Context, opts PostgresOptions) (*PostgresDocumentStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := &PostgresDocumentStore{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresDocumentStoreWithPool wraps an existing pool. Useful for
// testing with mocks.
func NewPostgresDocumentStoreWithPool(pool DBPool) *PostgresDocumentStore {
	return &PostgresDocumentStore{pool: pool}
}

// InitSchema creates the necessary tables if they don't exist.
func (s *PostgresDocumentStore) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding JSONB,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (document_id, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks (document_id);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresDocumentStore) Close() {
	s.pool.Close()
}

// InsertDocument stores a document.
func (s *PostgresDocumentStore) InsertDocument(ctx context.Context, doc *hybridrag.Document) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Title, doc.Content, metaJSON, doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, hybridrag.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// InsertChunks stores chunks for existing documents in one transaction,
// so a rejected chunk leaves nothing behind.
func (s *PostgresDocumentStore) InsertChunks(ctx context.Context, chunks []hybridrag.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	checked := make(map[string]bool)
	for i := range chunks {
		chunk := &chunks[i]

		if !checked[chunk.DocumentID] {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, chunk.DocumentID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check document: %w", err)
			}
			if !exists {
				return fmt.Errorf("chunk document %s: %w", chunk.DocumentID, hybridrag.ErrReference)
			}
			checked[chunk.DocumentID] = true
		}

		if chunk.ID == "" {
			chunk.ID = uuid.New().String()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}

		embJSON, err := marshalEmbeddingJSON(chunk.Embedding)
		if err != nil {
			return err
		}
		metaJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, ordinal, content, embedding, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Content, embJSON, metaJSON, chunk.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("chunk ordinal %d in document %s: %w", chunk.Ordinal, chunk.DocumentID, hybridrag.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetDocument returns the document with the given id.
func (s *PostgresDocumentStore) GetDocument(ctx context.Context, id string) (*hybridrag.Document, error) {
	var (
		doc      hybridrag.Document
		metaJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, content, metadata, created_at FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Title, &doc.Content, &metaJSON, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, hybridrag.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// ListChunks returns the chunks of a document in ordinal order.
func (s *PostgresDocumentStore) ListChunks(ctx context.Context, documentID string) ([]hybridrag.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE document_id = $1 ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// EmbeddedChunks returns every chunk that carries an embedding, ordered
// by chunk id.
func (s *PostgresDocumentStore) EmbeddedChunks(ctx context.Context) ([]hybridrag.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded chunks: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows pgx.Rows) ([]hybridrag.Chunk, error) {
	var chunks []hybridrag.Chunk
	for rows.Next() {
		var (
			chunk    hybridrag.Chunk
			embJSON  []byte
			metaJSON []byte
		)
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content, &embJSON, &metaJSON, &chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if len(embJSON) > 0 {
			if err := json.Unmarshal(embJSON, &chunk.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
			}
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func marshalEmbeddingJSON(embedding []float32) ([]byte, error) {
	if embedding == nil {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
