// Package testutil provides deterministic fixtures for index tests.
package testutil

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/lensmark/photovec/distance"
)

// RandomUnitVectors returns n seeded random vectors of the given dimension,
// each L2-normalized.
func RandomUnitVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		if !distance.NormalizeL2InPlace(v) {
			v[0] = 1
		}
		out[i] = v
	}
	return out
}

// BasisVector returns a unit vector of the given dimension with a 1 at axis.
func BasisVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

// Provider is a deterministic in-memory embedding provider.
//
// Image embeddings are looked up by path from Vectors; unknown paths yield a
// zero row, mimicking a provider-side failure. Text embeddings are derived
// from a stable hash of the query so equal queries embed equally.
type Provider struct {
	Dim     int
	Vectors map[string][]float32

	// ImageCalls records the batch sizes of EmbedImages invocations.
	ImageCalls []int
}

// NewProvider creates a provider with the given dimension and no known paths.
func NewProvider(dim int) *Provider {
	return &Provider{Dim: dim, Vectors: make(map[string][]float32)}
}

// Set registers the embedding for a path.
func (p *Provider) Set(path string, v []float32) {
	if len(v) != p.Dim {
		panic(fmt.Sprintf("testutil: vector dim %d != provider dim %d", len(v), p.Dim))
	}
	p.Vectors[path] = v
}

// EmbedImages implements embedding.Provider.
func (p *Provider) EmbedImages(ctx context.Context, paths []string, batchSize int) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.ImageCalls = append(p.ImageCalls, len(paths))
	out := make([][]float32, len(paths))
	for i, path := range paths {
		if v, ok := p.Vectors[path]; ok {
			out[i] = append([]float32(nil), v...)
		} else {
			out[i] = make([]float32, p.Dim)
		}
	}
	return out, nil
}

// EmbedText implements embedding.Provider.
func (p *Provider) EmbedText(ctx context.Context, query string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := p.Vectors[query]; ok {
		return append([]float32(nil), v...), nil
	}
	rng := rand.New(rand.NewSource(hashString(query)))
	v := make([]float32, p.Dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	if !distance.NormalizeL2InPlace(v) {
		v[0] = 1
	}
	return v, nil
}

func hashString(s string) int64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return int64(h & math.MaxInt64)
}
