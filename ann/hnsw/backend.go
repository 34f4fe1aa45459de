package hnsw

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lensmark/photovec/ann"
	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/corpus"
)

func init() {
	ann.Register(ann.KindHNSW, func(blobs blobstore.Store, c codec.Codec) ann.Backend {
		return New(blobs, c)
	})
}

// Options configure graph construction and search.
type Options struct {
	// M is the number of connections per node per layer. Layer 0 allows
	// double. The 12-48 range suits most embedding workloads.
	M int

	// EFConstruction is the beam width during build. Larger values buy
	// recall with slower builds.
	EFConstruction int

	// EFSearch is the beam width during queries, raised to k when lower.
	EFSearch int

	// Seed feeds the layer-assignment RNG so rebuilds over the same
	// corpus produce the same graph.
	Seed int64
}

// DefaultOptions match mid-size photo libraries with CLIP-scale dims.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       100,
	Seed:           1,
}

type metadata struct {
	ann.Metadata
	M  int `json:"m"`
	EF int `json:"ef_construction"`
}

// Backend is the HNSW adapter. The graph is built in memory, persisted as a
// gob blob, and lazily reloaded on the first Candidates call.
type Backend struct {
	blobs blobstore.Store
	codec codec.Codec
	opts  Options

	mu    sync.Mutex
	graph *graph
}

// New creates an HNSW backend over the given blob store.
func New(blobs blobstore.Store, c codec.Codec, optFns ...func(o *Options)) *Backend {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if c == nil {
		c = codec.Default
	}
	return &Backend{blobs: blobs, codec: c, opts: opts}
}

// Kind returns ann.KindHNSW.
func (b *Backend) Kind() ann.Kind { return ann.KindHNSW }

// Build inserts every corpus row into a fresh graph and persists it.
func (b *Backend) Build(ctx context.Context, st *corpus.State) (bool, error) {
	if st == nil || !st.HasVectors() || st.Len() == 0 {
		return false, nil
	}

	g := newGraph(st.Dim, b.opts.M, b.opts.EFConstruction, b.opts.Seed)
	for i := 0; i < st.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		g.insert(st.Vector(i))
	}

	payload, err := g.encode()
	if err != nil {
		return false, err
	}
	meta := metadata{
		Metadata: ann.Metadata{
			Kind:  ann.KindHNSW,
			Dim:   st.Dim,
			Size:  st.Len(),
			Codec: b.codec.Name(),
		},
		M:  b.opts.M,
		EF: b.opts.EFConstruction,
	}
	if err := ann.WriteSidecar(ctx, b.blobs, b.codec, ann.KindHNSW, meta, payload); err != nil {
		return false, err
	}

	b.mu.Lock()
	b.graph = g
	b.mu.Unlock()
	return true, nil
}

// Status probes the sidecar files.
func (b *Backend) Status(ctx context.Context) ann.Status {
	st := ann.Status{Kind: ann.KindHNSW, Available: true}
	meta, built, err := ann.ProbeSidecar(ctx, b.blobs, b.codec, ann.KindHNSW)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Built = built
	st.Size = meta.Size
	st.Dim = meta.Dim
	return st
}

// Candidates returns up to k approximate nearest rows, best first.
func (b *Backend) Candidates(ctx context.Context, q []float32, k int) ([]uint32, error) {
	if k <= 0 {
		return nil, nil
	}
	g, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(q) != g.dim {
		return nil, fmt.Errorf("hnsw: %w: got %d, index has %d", ann.ErrDimMismatch, len(q), g.dim)
	}
	return g.search(q, k, b.opts.EFSearch), nil
}

func (b *Backend) load(ctx context.Context) (*graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.graph != nil {
		return b.graph, nil
	}

	var meta metadata
	payload, err := ann.ReadSidecar(ctx, b.blobs, b.codec, ann.KindHNSW, &meta)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("hnsw: %w", ann.ErrNotBuilt)
		}
		return nil, err
	}
	g, err := decodeGraph(payload)
	if err != nil {
		return nil, err
	}
	if g.len() != meta.Size || g.dim != meta.Dim {
		return nil, fmt.Errorf("hnsw: sidecar holds %d nodes dim %d, metadata says %d nodes dim %d",
			g.len(), g.dim, meta.Size, meta.Dim)
	}
	b.graph = g
	return g, nil
}
