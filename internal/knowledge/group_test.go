package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumahub/luma-bridge/internal/backend"
)

type stubEmbedder struct {
	vec   []float64
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	s.calls++
	return s.vec, s.err
}

func TestGroupFirstSuccessWins(t *testing.T) {
	primary := &stubEmbedder{vec: []float64{1, 2}}
	fallback := &stubEmbedder{vec: []float64{9, 9}}
	g := NewGroupEmbedder(nil)
	g.Add("primary", primary)
	g.Add("fallback", fallback)

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vec)
	assert.Equal(t, 0, fallback.calls, "fallback must not run when the primary succeeds")
}

func TestGroupFallsThroughOnError(t *testing.T) {
	primary := &stubEmbedder{err: errors.New("connection refused")}
	fallback := &stubEmbedder{vec: []float64{3, 4}}
	g := NewGroupEmbedder(nil)
	g.Add("primary", primary)
	g.Add("fallback", fallback)

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, vec)
	assert.Equal(t, 1, primary.calls)
}

func TestGroupAllFailReturnsLastError(t *testing.T) {
	first := &stubEmbedder{err: errors.New("first down")}
	second := &stubEmbedder{err: errors.New("second down")}
	g := NewGroupEmbedder(nil)
	g.Add("first", first)
	g.Add("second", second)

	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second down")
}

func TestGroupSkipsUnconfigured(t *testing.T) {
	unconfigured := &stubEmbedder{err: backend.ErrNotConfigured}
	working := &stubEmbedder{vec: []float64{5}}
	g := NewGroupEmbedder(nil)
	g.Add("cloud", unconfigured)
	g.Add("local", working)

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, vec)
}

func TestGroupIgnoresNilEntries(t *testing.T) {
	g := NewGroupEmbedder(nil)
	g.Add("missing", nil)
	g.Add("real", &stubEmbedder{vec: []float64{1}})
	assert.Equal(t, []string{"real"}, g.Names())
}

func TestGroupEmpty(t *testing.T) {
	g := NewGroupEmbedder(nil)
	_, err := g.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
