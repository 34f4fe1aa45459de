package annoy

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
	ann.Register(ann.KindAnnoy, func(blobs blobstore.Store, c codec.Codec) ann.Backend {
		return New(blobs, c)
	})
}

// Options configure forest construction and search.
type Options struct {
	// Trees is the forest size. More trees raise recall and build time.
	Trees int

	// LeafSize bounds how many rows a leaf may hold before splitting.
	LeafSize int

	// SearchK caps the number of leaves visited per query. Zero derives
	// it as Trees * k at query time.
	SearchK int

	// Seed feeds the split-sampling RNGs so rebuilds over the same
	// corpus produce the same forest.
	Seed int64
}

// DefaultOptions suit photo libraries in the tens of thousands of rows.
var DefaultOptions = Options{
	Trees:    20,
	LeafSize: 32,
	Seed:     1,
}

type metadata struct {
	ann.Metadata
	Trees    int   `json:"trees"`
	LeafSize int   `json:"leaf_size"`
	Seed     int64 `json:"seed"`
}

// Backend is the annoy-forest adapter. The forest is built in memory,
// persisted as a gob blob, and lazily reloaded on the first Candidates call.
type Backend struct {
	blobs blobstore.Store
	codec codec.Codec
	opts  Options

	mu     sync.Mutex
	forest *forest
}

// New creates an annoy backend over the given blob store.
func New(blobs blobstore.Store, c codec.Codec, optFns ...func(o *Options)) *Backend {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Trees <= 0 {
		opts.Trees = 1
	}
	if opts.LeafSize <= 0 {
		opts.LeafSize = DefaultOptions.LeafSize
	}
	if c == nil {
		c = codec.Default
	}
	return &Backend{blobs: blobs, codec: c, opts: opts}
}

// Kind returns ann.KindAnnoy.
func (b *Backend) Kind() ann.Kind { return ann.KindAnnoy }

// Build constructs a fresh forest over the corpus matrix and persists it.
func (b *Backend) Build(ctx context.Context, st *corpus.State) (bool, error) {
	if st == nil || !st.HasVectors() || st.Len() == 0 {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f := buildForest(st.Dim, st.Vectors, b.opts.Trees, b.opts.LeafSize, b.opts.Seed)
	payload, err := f.encode()
	if err != nil {
		return false, err
	}
	meta := metadata{
		Metadata: ann.Metadata{
			Kind:  ann.KindAnnoy,
			Dim:   st.Dim,
			Size:  st.Len(),
			Codec: b.codec.Name(),
		},
		Trees:    b.opts.Trees,
		LeafSize: b.opts.LeafSize,
		Seed:     b.opts.Seed,
	}
	if err := ann.WriteSidecar(ctx, b.blobs, b.codec, ann.KindAnnoy, meta, payload); err != nil {
		return false, err
	}

	b.mu.Lock()
	b.forest = f
	b.mu.Unlock()
	return true, nil
}

// Status probes the sidecar files.
func (b *Backend) Status(ctx context.Context) ann.Status {
	st := ann.Status{Kind: ann.KindAnnoy, Available: true}
	meta, built, err := ann.ProbeSidecar(ctx, b.blobs, b.codec, ann.KindAnnoy)
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
	f, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(q) != f.Dim {
		return nil, fmt.Errorf("annoy: %w: got %d, index has %d", ann.ErrDimMismatch, len(q), f.Dim)
	}

	searchK := b.opts.SearchK
	if searchK <= 0 {
		searchK = b.opts.Trees * k
	}
	return f.search(q, k, searchK), nil
}

func (b *Backend) load(ctx context.Context) (*forest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.forest != nil {
		return b.forest, nil
	}

	var meta metadata
	payload, err := ann.ReadSidecar(ctx, b.blobs, b.codec, ann.KindAnnoy, &meta)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("annoy: %w", ann.ErrNotBuilt)
		}
		return nil, err
	}
	f, err := decodeForest(payload)
	if err != nil {
		return nil, err
	}
	if f.Dim != meta.Dim || f.size() != meta.Size {
		return nil, fmt.Errorf("annoy: sidecar holds %d rows dim %d, metadata says %d rows dim %d",
			f.size(), f.Dim, meta.Size, meta.Dim)
	}
	b.forest = f
	return f, nil
}
