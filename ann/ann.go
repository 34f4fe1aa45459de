// Package ann defines the adapter surface shared by the approximate
// nearest-neighbor backends and the sidecar file conventions they persist
// under.
//
// A backend is never the source of truth for scores: it returns candidate
// corpus rows, and the caller reranks them with exact cosine similarity. The
// only thing a backend trades away is recall.
package ann

import (
	"context"

	"github.com/lensmark/photovec/corpus"
)

// Kind identifies a backend strategy.
type Kind string

const (
	// KindFlat is the inner-product flat index: exhaustive over a compact
	// copy of the matrix, candidates already near exact.
	KindFlat Kind = "flat"
	// KindHNSW is the hierarchical navigable small world graph.
	KindHNSW Kind = "hnsw"
	// KindAnnoy is the random-projection tree forest.
	KindAnnoy Kind = "annoy"

	// KindExact is not a backend: it names the exact search path in
	// selection hints and result metadata.
	KindExact Kind = "exact"
	// KindAuto asks the manager to pick the best built backend.
	KindAuto Kind = "auto"
)

// Preference is the fixed order used for automatic backend selection.
var Preference = []Kind{KindFlat, KindHNSW, KindAnnoy}

// BlobName returns the sidecar index file name for a kind.
func BlobName(kind Kind) string { return string(kind) + ".index" }

// MetaName returns the sidecar metadata file name for a kind.
func MetaName(kind Kind) string { return string(kind) + ".meta.json" }

// Metadata is the common part of every backend's sidecar metadata record.
// Backends embed it in their own metadata structs so build parameters
// serialize alongside dim and size. Codec records the name of the codec that
// wrote the sidecar so readers can select the matching implementation.
type Metadata struct {
	Kind  Kind   `json:"kind"`
	Dim   int    `json:"dim"`
	Size  int    `json:"size"`
	Codec string `json:"codec,omitempty"`
}

// Status describes one backend for diagnostics.
//
// Err is populated only on unexpected I/O or parse failures while probing
// the sidecar, never for a backend that is simply not built.
type Status struct {
	Kind      Kind   `json:"kind"`
	Available bool   `json:"available"`
	Built     bool   `json:"built"`
	Stale     bool   `json:"stale"`
	Size      int    `json:"size"`
	Dim       int    `json:"dim"`
	Err       string `json:"error,omitempty"`
}

// Backend builds, probes, and queries one approximate index sidecar.
//
// Implementations are single-threaded per call, like the corpus store:
// callers serialize Build against Candidates for a given directory.
type Backend interface {
	// Kind returns the backend's identity.
	Kind() Kind

	// Build constructs the sidecar from the corpus embedding matrix.
	// It returns false, nil when there is nothing to build (empty matrix);
	// true, nil on success; and an error only for I/O failures.
	Build(ctx context.Context, st *corpus.State) (bool, error)

	// Status probes the sidecar files without loading the full index.
	Status(ctx context.Context) Status

	// Candidates returns up to k approximate nearest rows for the
	// unit-normalized query vector, best first by the backend's own
	// metric. Callers must rerank with exact similarity.
	Candidates(ctx context.Context, q []float32, k int) ([]uint32, error)
}
