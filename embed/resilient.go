package embed

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/smallnest/hybridrag"
	"github.com/smallnest/hybridrag/log"
)

// ResilientOptions configures a Resilient embedder.
type ResilientOptions struct {
	// Dimension of fallback vectors. Required when Inner is nil,
	// otherwise defaults to Inner.Dimension().
	Dimension int
	Logger    log.Logger
}

// Resilient wraps an embedder and substitutes a deterministic placeholder
// vector when the wrapped embedder fails. Callers that need to know
// whether a result is degraded use EmbedFlagged.
//
// A nil inner embedder is allowed; every call then produces a fallback
// vector, which is useful for offline runs and tests.
type Resilient struct {
	inner     hybridrag.Embedder
	dimension int
	logger    log.Logger
}

var _ hybridrag.Embedder = (*Resilient)(nil)

// NewResilient wraps inner with fallback behavior.
func NewResilient(inner hybridrag.Embedder, opts ResilientOptions) *Resilient {
	dimension := opts.Dimension
	if dimension <= 0 && inner != nil {
		dimension = inner.Dimension()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resilient{inner: inner, dimension: dimension, logger: logger}
}

// Embed returns the inner embedding, or the fallback on failure.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := r.EmbedFlagged(ctx, text)
	return vec, err
}

// EmbedFlagged returns the embedding for text together with a degraded
// flag. The flag is true when the wrapped embedder failed and the vector
// is a deterministic placeholder derived from the text alone.
func (r *Resilient) EmbedFlagged(ctx context.Context, text string) ([]float32, bool, error) {
	if r.inner != nil {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, false, nil
		}
		r.logger.Warn("embedding failed, using fallback vector: %v", err)
	}
	return Fallback(text, r.dimension), true, nil
}

// Dimension returns the fixed embedding width.
func (r *Resilient) Dimension() int {
	return r.dimension
}

// Fallback derives a unit-norm placeholder vector from text. The same
// text always produces the same vector, so repeated indexing and querying
// stay consistent while the real embedder is unavailable.
func Fallback(text string, dimension int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dimension)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
