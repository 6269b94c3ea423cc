package noop

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-5)
	assert.Error(t, err)
}

func TestEmbed_Deterministic(t *testing.T) {
	p, err := New(64)
	require.NoError(t, err)

	a, err := p.Embed(context.Background(), "User Likes Coffee")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "user likes coffee")
	require.NoError(t, err)

	// Case-insensitive and deterministic.
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestEmbed_Normalized(t *testing.T) {
	p, err := New(32)
	require.NoError(t, err)

	v, err := p.Embed(context.Background(), "some text with several words")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbed_DistinctTexts(t *testing.T) {
	p, err := New(64)
	require.NoError(t, err)

	a, err := p.Embed(context.Background(), "coffee preferences")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "deployment pipeline")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmbedBatch(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)

	vectors, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 16)
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestDimensions(t *testing.T) {
	p, err := New(128)
	require.NoError(t, err)
	assert.Equal(t, 128, p.Dimensions())
	assert.NoError(t, p.Close())
}
