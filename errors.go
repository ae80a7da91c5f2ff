package hybridrag

import "errors"

// Error kinds shared by every subsystem. Implementations wrap these with
// fmt.Errorf("...: %w", err) so callers can classify failures with
// errors.Is without parsing messages.
var (
	// ErrNotFound is returned when a referenced node, edge, document or
	// path does not exist. Reported, never fatal to a whole request.
	ErrNotFound = errors.New("hybridrag: not found")

	// ErrDuplicate is returned when creating an edge whose
	// (source, target, relationship) triple already exists, or a chunk
	// whose ordinal is already taken within its document. The existing
	// row is never overwritten.
	ErrDuplicate = errors.New("hybridrag: duplicate")

	// ErrReference is returned when edge or chunk creation names an
	// endpoint that does not exist. Nothing is created.
	ErrReference = errors.New("hybridrag: missing reference")

	// ErrInvalidRequest is returned for malformed caller input, rejected
	// before any side effect occurs.
	ErrInvalidRequest = errors.New("hybridrag: invalid request")

	// ErrConfiguration is returned for embedding dimension mismatches and
	// store misconfiguration. Fatal for the affected step only.
	ErrConfiguration = errors.New("hybridrag: configuration error")

	// ErrUnavailable is returned when a backing store or the embedding
	// collaborator is unreachable.
	ErrUnavailable = errors.New("hybridrag: upstream unavailable")
)
