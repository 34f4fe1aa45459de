// Package flat implements the inner-product flat backend: a compact copy of
// the corpus matrix scanned exhaustively per query. Recall is exact; the only
// approximation is that candidates still get reranked by the caller.
package flat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/lensmark/photovec/ann"
	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/corpus"
	"github.com/lensmark/photovec/distance"
	"github.com/lensmark/photovec/internal/queue"
)

func init() {
	ann.Register(ann.KindFlat, func(blobs blobstore.Store, c codec.Codec) ann.Backend {
		return New(blobs, c)
	})
}

type metadata struct {
	ann.Metadata
}

// Backend is the flat inner-product adapter. It lazily loads the sidecar on
// the first Candidates call and keeps it cached until the next Build.
type Backend struct {
	blobs blobstore.Store
	codec codec.Codec

	mu     sync.Mutex
	dim    int
	matrix []float32
}

// New creates a flat backend over the given blob store.
func New(blobs blobstore.Store, c codec.Codec) *Backend {
	if c == nil {
		c = codec.Default
	}
	return &Backend{blobs: blobs, codec: c}
}

// Kind returns ann.KindFlat.
func (b *Backend) Kind() ann.Kind { return ann.KindFlat }

// Build writes a compact copy of the corpus matrix as the sidecar.
func (b *Backend) Build(ctx context.Context, st *corpus.State) (bool, error) {
	if st == nil || !st.HasVectors() || st.Len() == 0 {
		return false, nil
	}

	payload := make([]byte, len(st.Vectors)*4)
	for i, v := range st.Vectors {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}
	meta := metadata{Metadata: ann.Metadata{
		Kind:  ann.KindFlat,
		Dim:   st.Dim,
		Size:  st.Len(),
		Codec: b.codec.Name(),
	}}
	if err := ann.WriteSidecar(ctx, b.blobs, b.codec, ann.KindFlat, meta, payload); err != nil {
		return false, err
	}

	b.mu.Lock()
	b.dim = st.Dim
	b.matrix = append([]float32(nil), st.Vectors...)
	b.mu.Unlock()
	return true, nil
}

// Status probes the sidecar files.
func (b *Backend) Status(ctx context.Context) ann.Status {
	st := ann.Status{Kind: ann.KindFlat, Available: true}
	meta, built, err := ann.ProbeSidecar(ctx, b.blobs, b.codec, ann.KindFlat)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Built = built
	st.Size = meta.Size
	st.Dim = meta.Dim
	return st
}

// Candidates scans the cached matrix and returns the k best rows by inner
// product, best first.
func (b *Backend) Candidates(ctx context.Context, q []float32, k int) ([]uint32, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, matrix, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(q) != dim {
		return nil, fmt.Errorf("flat: %w: got %d, index has %d", ann.ErrDimMismatch, len(q), dim)
	}

	rows := len(matrix) / dim
	top := queue.NewTopK(min(k, rows))
	for row := 0; row < rows; row++ {
		score := distance.Dot(q, matrix[row*dim:(row+1)*dim])
		top.Push(queue.Item{Row: uint32(row), Score: score})
	}
	items := top.Drain()
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.Row
	}
	return out, nil
}

func (b *Backend) load(ctx context.Context) (int, []float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.matrix != nil {
		return b.dim, b.matrix, nil
	}

	var meta metadata
	payload, err := ann.ReadSidecar(ctx, b.blobs, b.codec, ann.KindFlat, &meta)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, nil, fmt.Errorf("flat: %w", ann.ErrNotBuilt)
		}
		return 0, nil, err
	}
	if meta.Dim <= 0 || len(payload) != meta.Size*meta.Dim*4 {
		return 0, nil, fmt.Errorf("flat: sidecar payload holds %d bytes, want %d rows x %d dim",
			len(payload), meta.Size, meta.Dim)
	}

	matrix := make([]float32, meta.Size*meta.Dim)
	for i := range matrix {
		matrix[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	b.dim = meta.Dim
	b.matrix = matrix
	return b.dim, b.matrix, nil
}
