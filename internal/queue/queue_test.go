package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopKOrdering(t *testing.T) {
	q := NewTopK(3)
	for row, score := range []float32{0.1, 0.9, 0.5, 0.7, 0.3} {
		q.Push(Item{Row: uint32(row), Score: score})
	}

	got := q.Drain()
	require.Equal(t, []Item{
		{Row: 1, Score: 0.9},
		{Row: 3, Score: 0.7},
		{Row: 2, Score: 0.5},
	}, got)
}

func TestTopKStableTies(t *testing.T) {
	q := NewTopK(2)
	q.Push(Item{Row: 0, Score: 0.0})
	q.Push(Item{Row: 1, Score: 0.0})
	q.Push(Item{Row: 2, Score: 0.0})

	got := q.Drain()
	require.Equal(t, []Item{{Row: 0, Score: 0}, {Row: 1, Score: 0}}, got)
}

func TestTopKFewerThanK(t *testing.T) {
	q := NewTopK(10)
	q.Push(Item{Row: 0, Score: 1})
	got := q.Drain()
	require.Len(t, got, 1)
	require.Equal(t, uint32(0), got[0].Row)
}

func TestTopKMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, k = 500, 25

	items := make([]Item, n)
	q := NewTopK(k)
	for i := range items {
		// Coarse scores force plenty of ties.
		items[i] = Item{Row: uint32(i), Score: float32(rng.Intn(50)) / 50}
		q.Push(items[i])
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Row < items[j].Row
	})

	require.Equal(t, items[:k], q.Drain())
}
