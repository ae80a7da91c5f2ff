// Package loader turns single source texts (plain, markdown, HTML) into
// a Document plus ordered Chunks ready for insertion. It does not insert
// anything itself and it does no batching; callers own the store.
package loader

import (
	"context"
	"strings"

	"github.com/smallnest/hybridrag"
)

// Splitter cuts text into chunks of bounded size with optional overlap,
// preferring to break at the largest separator that fits.
type Splitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithChunkSize sets the maximum chunk length in bytes.
func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the overlap carried between adjacent chunks
// when a hard character split is needed.
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the separators tried in order, largest first.
func WithSeparators(separators []string) SplitterOption {
	return func(s *Splitter) {
		s.separators = separators
	}
}

// NewSplitter creates a splitter. Defaults: 1000-byte chunks, 200-byte
// overlap, paragraph/line/space separators.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		separators:   []string{"\n\n", "\n", " "},
		chunkSize:    1000,
		chunkOverlap: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize <= 0 {
		s.chunkSize = 1000
	}
	if s.chunkOverlap < 0 {
		s.chunkOverlap = 0
	}
	if s.chunkOverlap >= s.chunkSize {
		s.chunkOverlap = s.chunkSize / 2
	}
	return s
}

// Split cuts text into chunks. Empty pieces are dropped; source order
// is preserved.
func (s *Splitter) Split(text string) []string {
	pieces := s.split(strings.TrimSpace(text), s.separators)

	out := pieces[:0]
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func (s *Splitter) split(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitByLength(text)
	}

	parts := strings.Split(text, separators[0])
	var merged []string
	var current string
	for _, part := range parts {
		candidate := part
		if current != "" {
			candidate = current + separators[0] + part
		}
		if len(candidate) <= s.chunkSize {
			current = candidate
			continue
		}
		if current != "" {
			merged = append(merged, current)
		}
		if len(part) > s.chunkSize {
			merged = append(merged, s.split(part, separators[1:])...)
			current = ""
		} else {
			current = part
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

func (s *Splitter) splitByLength(text string) []string {
	var splits []string
	step := s.chunkSize - s.chunkOverlap
	for i := 0; i < len(text); i += step {
		end := i + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		splits = append(splits, text[i:end])
		if end == len(text) {
			break
		}
	}
	return splits
}

// Build assembles a Document and its ordered Chunks from plain text.
// Chunk ordinals follow source order starting at zero. IDs are assigned
// by the store on insert.
func Build(title, text string, splitter *Splitter) (*hybridrag.Document, []hybridrag.Chunk) {
	if splitter == nil {
		splitter = NewSplitter()
	}

	doc := &hybridrag.Document{Title: title, Content: text}
	pieces := splitter.Split(text)
	chunks := make([]hybridrag.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, hybridrag.Chunk{
			Ordinal: i,
			Content: piece,
			Metadata: hybridrag.Properties{
				"chunk_total": len(pieces),
				"title":       title,
			},
		})
	}
	return doc, chunks
}

// EmbedChunks fills in chunk embeddings. When the embedder can report
// degraded results, degraded chunks are marked in their metadata so the
// flag survives into retrieval provenance.
func EmbedChunks(ctx context.Context, embedder hybridrag.Embedder, chunks []hybridrag.Chunk) error {
	type flagged interface {
		EmbedFlagged(ctx context.Context, text string) ([]float32, bool, error)
	}

	for i := range chunks {
		if f, ok := embedder.(flagged); ok {
			vec, degraded, err := f.EmbedFlagged(ctx, chunks[i].Content)
			if err != nil {
				return err
			}
			chunks[i].Embedding = vec
			if degraded {
				if chunks[i].Metadata == nil {
					chunks[i].Metadata = hybridrag.Properties{}
				}
				chunks[i].Metadata["degraded_embedding"] = true
			}
			continue
		}
		vec, err := embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return err
		}
		chunks[i].Embedding = vec
	}
	return nil
}
