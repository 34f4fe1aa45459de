// Package corpus owns the persisted set of (path, mtime, embedding) rows for
// one indexed directory and answers exact similarity queries over it.
//
// The corpus is three parallel structures: a path list, a modification-time
// list, and an optional dense float32 matrix with one L2-normalized row per
// path. Row order is insertion order and is the identifier space shared with
// the ANN backends: backend candidates are row indices into this corpus.
package corpus

import "fmt"

// PhotoFile describes one on-disk photo as seen by the caller's scanner.
// Callers filter to supported extensions before handing files to Upsert.
type PhotoFile struct {
	Path  string
	MTime float64 // seconds since epoch
}

// Result is one ranked search hit. Score is an exact cosine similarity;
// results are ordered descending, ties broken by row order.
type Result struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

// State holds the in-memory corpus.
//
// Invariant: len(MTimes) == len(Paths), and when Dim > 0,
// len(Vectors) == len(Paths)*Dim with row i at Vectors[i*Dim : (i+1)*Dim].
// When Dim == 0 the corpus has no searchable vectors.
type State struct {
	Paths   []string
	MTimes  []float64
	Dim     int
	Vectors []float32
}

// NewState returns an empty corpus.
func NewState() *State {
	return &State{}
}

// Len returns the number of rows.
func (s *State) Len() int { return len(s.Paths) }

// HasVectors reports whether the corpus carries an embedding matrix.
func (s *State) HasVectors() bool { return s.Dim > 0 }

// Vector returns row i of the embedding matrix. The returned slice aliases
// the matrix and must be treated as read-only.
func (s *State) Vector(i int) []float32 {
	return s.Vectors[i*s.Dim : (i+1)*s.Dim]
}

// RowIndex returns a path → row lookup table.
func (s *State) RowIndex() map[string]int {
	m := make(map[string]int, len(s.Paths))
	for i, p := range s.Paths {
		m[p] = i
	}
	return m
}

// validate checks the parallel-array invariant.
func (s *State) validate() error {
	if len(s.MTimes) != len(s.Paths) {
		return fmt.Errorf("corpus: %d mtimes for %d paths", len(s.MTimes), len(s.Paths))
	}
	if s.Dim > 0 && len(s.Vectors) != len(s.Paths)*s.Dim {
		return fmt.Errorf("corpus: matrix holds %d floats, want %d rows x %d dim",
			len(s.Vectors), len(s.Paths), s.Dim)
	}
	if s.Dim == 0 && len(s.Vectors) != 0 {
		return fmt.Errorf("corpus: %d matrix floats with zero dim", len(s.Vectors))
	}
	return nil
}
