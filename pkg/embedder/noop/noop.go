// Package noop provides a deterministic, offline embedding provider.
//
// It maps text to a fixed-dimension vector by hashing words into
// buckets. The vectors carry no real semantics, but identical texts
// always produce identical vectors and word overlap yields nonzero
// similarity, which is enough for tests and for deployments that only
// need exact and near-exact recall without an embedding API.
package noop

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

// Provider is a deterministic hash-based embedding provider.
type Provider struct {
	dimensions int
}

// New creates a noop embedding provider with the given vector
// dimension.
func New(dimensions int) (*Provider, error) {
	if dimensions <= 0 {
		return nil, errors.New("noop: dimensions must be positive")
	}
	return &Provider{dimensions: dimensions}, nil
}

// Embed maps text to an L2-normalized bag-of-words vector.
//
// Each lowercased word is hashed with FNV-64a; the hash selects a
// bucket and a sign. Empty text produces the zero vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, p.dimensions)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()

		bucket := int(sum % uint64(p.dimensions))
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the vector dimension.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// Close releases resources. Nothing to do for the noop provider.
func (p *Provider) Close() error {
	return nil
}
