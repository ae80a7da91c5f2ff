package embed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/hybridrag/log"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) Dimension() int { return len(s.vec) }

func TestResilientPassThrough(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := NewResilient(inner, ResilientOptions{Logger: log.Nop{}})

	vec, degraded, err := r.EmbedFlagged(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, inner.vec, vec)
	assert.Equal(t, 3, r.Dimension())
}

func TestResilientFallbackOnError(t *testing.T) {
	inner := &stubEmbedder{vec: make([]float32, 8), err: errors.New("boom")}
	r := NewResilient(inner, ResilientOptions{Logger: log.Nop{}})

	vec, degraded, err := r.EmbedFlagged(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Len(t, vec, 8)
}

func TestResilientNilInner(t *testing.T) {
	r := NewResilient(nil, ResilientOptions{Dimension: 16, Logger: log.Nop{}})

	vec, degraded, err := r.EmbedFlagged(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Len(t, vec, 16)
}

func TestFallbackDeterministic(t *testing.T) {
	a := Fallback("same text", 32)
	b := Fallback("same text", 32)
	c := Fallback("other text", 32)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTruncateRuneBoundary(t *testing.T) {
	// "é" is two bytes; a limit landing mid-rune must back up.
	text := "abé"
	assert.Equal(t, "ab", truncate(text, 3))
	assert.Equal(t, "abé", truncate(text, 4))
	assert.Equal(t, "abé", truncate(text, 100))

	cut := truncate(strings.Repeat("é", 100), 7)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 6, len(cut))
}

func TestFallbackUnitNorm(t *testing.T) {
	vec := Fallback("anything", 64)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
