package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"identical unit", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"negative", []float32{1, 0}, []float32{-1, 0}, -1},
		{"longer than unroll", []float32{1, 2, 3, 4, 5, 6}, []float32{6, 5, 4, 3, 2, 1}, 56},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Dot(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{5, 4, 3, 2, 1}
	require.InDelta(t, float32(40), SquaredL2(a, b), 1e-6)
	require.Equal(t, float32(0), SquaredL2(a, a))
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	require.InDelta(t, 0.6, v[0], 1e-6)
	require.InDelta(t, 0.8, v[1], 1e-6)
	require.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := []float32{0, 0, 0}
	require.False(t, NormalizeL2InPlace(zero))
	require.False(t, NormalizeL2InPlace(nil))
}

func TestNormalizeL2Copy(t *testing.T) {
	src := []float32{2, 0, 0}
	dst, ok := NormalizeL2Copy(src)
	require.True(t, ok)
	require.Equal(t, float32(2), src[0], "source must not be mutated")
	require.Equal(t, float32(1), dst[0])

	_, ok = NormalizeL2Copy([]float32{0})
	require.False(t, ok)
}

func TestNormLargeVector(t *testing.T) {
	v := make([]float32, 512)
	for i := range v {
		v[i] = 1
	}
	require.InDelta(t, math.Sqrt(512), float64(Norm(v)), 1e-3)
}
