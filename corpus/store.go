package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/distance"
	"github.com/lensmark/photovec/embedding"
	"github.com/lensmark/photovec/internal/queue"
)

// Artifact names within an index directory.
const (
	PathsBlobName      = "paths.json"
	EmbeddingsBlobName = "embeddings.bin"
)

// ErrZeroQueryEmbedding is returned when the provider embeds a text query to
// a zero-norm vector. It marks a provider-side failure, not corpus state.
var ErrZeroQueryEmbedding = errors.New("corpus: query embedded to zero vector")

// Options configures a Store.
type Options struct {
	// Codec serializes the paths record. Default: codec.Default.
	Codec codec.Codec

	// Logger receives structured diagnostics. Default: discard.
	Logger *slog.Logger

	// MTimeEpsilon guards modification detection against filesystem
	// timestamp jitter. Default: 1e-6 seconds.
	MTimeEpsilon float64

	// BatchSize is the default embedding batch size when Upsert is called
	// with batchSize <= 0. Default: 32.
	BatchSize int
}

// DefaultOptions are the default Store options.
var DefaultOptions = Options{
	MTimeEpsilon: 1e-6,
	BatchSize:    32,
}

// pathsRecord is the persisted form of the parallel path/mtime arrays.
type pathsRecord struct {
	Paths  []string  `json:"paths"`
	MTimes []float64 `json:"mtimes"`
}

// Store persists one corpus and serves exact searches over it.
//
// A Store is single-writer: operations perform no internal locking and
// callers must serialize mutations per index directory. Searching while an
// upsert is in flight observes either the pre- or post-upsert state.
type Store struct {
	blobs blobstore.Store
	codec codec.Codec
	log   *slog.Logger
	opts  Options

	state *State
}

// Open creates a Store over the given directory and loads any persisted
// corpus. A missing or corrupt corpus yields an empty state, never an error;
// only directory creation can fail.
func Open(dir string, optFns ...func(*Options)) (*Store, error) {
	blobs, err := blobstore.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	return NewStore(blobs, optFns...), nil
}

// NewStore creates a Store over an arbitrary blob store and loads state.
func NewStore(blobs blobstore.Store, optFns ...func(*Options)) *Store {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MTimeEpsilon <= 0 {
		opts.MTimeEpsilon = DefaultOptions.MTimeEpsilon
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions.BatchSize
	}

	s := &Store{
		blobs: blobs,
		codec: opts.Codec,
		log:   opts.Logger,
		opts:  opts,
	}
	s.Load(context.Background())
	return s
}

// State returns the current in-memory corpus. The returned value is live;
// callers must not mutate it.
func (s *Store) State() *State { return s.state }

// Blobs returns the underlying blob store (used for sidecar mirroring).
func (s *Store) Blobs() blobstore.Store { return s.blobs }

// Load reads the persisted corpus into memory.
//
// Corruption never prevents a restart: on any read, parse, or shape error the
// store resets to an empty corpus and logs the cause. History is then lost
// until the next full upsert re-embeds the photo set.
func (s *Store) Load(ctx context.Context) {
	st := NewState()
	defer func() { s.state = st }()

	data, err := s.blobs.Open(ctx, PathsBlobName)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			s.log.Warn("corpus paths record unreadable, starting empty", "error", err)
		}
		return
	}

	var rec pathsRecord
	if err := s.codec.Unmarshal(data, &rec); err != nil {
		s.log.Warn("corpus paths record corrupt, starting empty", "error", err)
		return
	}
	loaded := &State{Paths: rec.Paths, MTimes: rec.MTimes}
	if err := loaded.validate(); err != nil {
		s.log.Warn("corpus paths record inconsistent, starting empty", "error", err)
		return
	}

	blob, err := s.blobs.Open(ctx, EmbeddingsBlobName)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		if loaded.Len() > 0 {
			// Paths without their matrix cannot satisfy the row
			// alignment invariant; treat as corruption.
			s.log.Warn("corpus embeddings blob missing, starting empty", "rows", loaded.Len())
			return
		}
	case err != nil:
		s.log.Warn("corpus embeddings blob unreadable, starting empty", "error", err)
		return
	default:
		if err := decodeEmbeddings(blob, loaded); err != nil {
			s.log.Warn("corpus embeddings blob corrupt, starting empty", "error", err)
			return
		}
	}

	st = loaded
	s.log.Debug("corpus loaded", "rows", st.Len(), "dim", st.Dim)
}

// Save persists the corpus. Unlike load-side corruption, write failures
// propagate: silently dropping a save would desynchronize memory and disk.
//
// Save is idempotent: saving twice with no mutation writes identical bytes.
func (s *Store) Save(ctx context.Context) error {
	rec := pathsRecord{Paths: s.state.Paths, MTimes: s.state.MTimes}
	if rec.Paths == nil {
		rec.Paths = []string{}
	}
	if rec.MTimes == nil {
		rec.MTimes = []float64{}
	}
	data, err := s.codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("corpus: marshal paths record: %w", err)
	}
	if err := s.blobs.Create(ctx, PathsBlobName, data); err != nil {
		return fmt.Errorf("corpus: write paths record: %w", err)
	}
	if err := s.blobs.Create(ctx, EmbeddingsBlobName, encodeEmbeddings(s.state)); err != nil {
		return fmt.Errorf("corpus: write embeddings blob: %w", err)
	}
	return nil
}

// Upsert reconciles the corpus against the current on-disk photo set.
//
// New and modified photos are embedded in batches of batchSize; rows for
// modified photos are overwritten in place so row indices held by built
// backends stay valid for surviving paths. Photos absent from the input are
// pruned. The result counts exclude items whose embedding failed (zero-norm
// provider rows), which will be retried on the next upsert.
func (s *Store) Upsert(ctx context.Context, provider embedding.Provider, photos []PhotoFile, batchSize int) (newCount, updatedCount int, err error) {
	if batchSize <= 0 {
		batchSize = s.opts.BatchSize
	}

	rowOf := s.state.RowIndex()

	type pending struct {
		photo PhotoFile
		row   int // -1 for new paths
	}
	var work []pending
	for _, p := range photos {
		row, ok := rowOf[p.Path]
		switch {
		case !ok:
			work = append(work, pending{photo: p, row: -1})
		case p.MTime > s.state.MTimes[row]+s.opts.MTimeEpsilon:
			work = append(work, pending{photo: p, row: row})
		}
	}

	for start := 0; start < len(work); start += batchSize {
		end := min(start+batchSize, len(work))
		chunk := work[start:end]

		paths := make([]string, len(chunk))
		for i, w := range chunk {
			paths[i] = w.photo.Path
		}
		rows, err := provider.EmbedImages(ctx, paths, batchSize)
		if err != nil {
			return newCount, updatedCount, fmt.Errorf("corpus: embed batch: %w", err)
		}
		if len(rows) != len(chunk) {
			return newCount, updatedCount, fmt.Errorf("corpus: provider returned %d rows for %d paths", len(rows), len(chunk))
		}

		for i, w := range chunk {
			vec, ok := distance.NormalizeL2Copy(rows[i])
			if !ok {
				s.log.Debug("embedding failed, item dropped", "path", w.photo.Path)
				continue
			}
			if s.state.Dim == 0 {
				s.state.Dim = len(vec)
			}
			if len(vec) != s.state.Dim {
				s.log.Warn("embedding dimension mismatch, item dropped",
					"path", w.photo.Path, "got", len(vec), "want", s.state.Dim)
				continue
			}
			if w.row >= 0 {
				copy(s.state.Vectors[w.row*s.state.Dim:], vec)
				s.state.MTimes[w.row] = w.photo.MTime
				updatedCount++
			} else {
				s.state.Paths = append(s.state.Paths, w.photo.Path)
				s.state.MTimes = append(s.state.MTimes, w.photo.MTime)
				s.state.Vectors = append(s.state.Vectors, vec...)
				newCount++
			}
		}
	}

	s.prune(photos)

	if err := s.Save(ctx); err != nil {
		return newCount, updatedCount, err
	}
	s.log.Info("corpus upsert", "new", newCount, "updated", updatedCount, "rows", s.state.Len())
	return newCount, updatedCount, nil
}

// prune drops every row whose path is not in the given photo set, keeping
// the parallel arrays and the matrix in lockstep.
func (s *Store) prune(photos []PhotoFile) {
	present := make(map[string]struct{}, len(photos))
	for _, p := range photos {
		present[p.Path] = struct{}{}
	}

	dim := s.state.Dim
	keep := 0
	for i, path := range s.state.Paths {
		if _, ok := present[path]; !ok {
			continue
		}
		if keep != i {
			s.state.Paths[keep] = s.state.Paths[i]
			s.state.MTimes[keep] = s.state.MTimes[i]
			if dim > 0 {
				copy(s.state.Vectors[keep*dim:(keep+1)*dim], s.state.Vectors[i*dim:(i+1)*dim])
			}
		}
		keep++
	}
	s.state.Paths = s.state.Paths[:keep]
	s.state.MTimes = s.state.MTimes[:keep]
	if dim > 0 {
		s.state.Vectors = s.state.Vectors[:keep*dim]
	}
}

// Search embeds query and returns the topK most similar rows, optionally
// restricted to the rows in subset.
func (s *Store) Search(ctx context.Context, provider embedding.Provider, query string, topK int, subset *roaring.Bitmap) ([]Result, error) {
	q, err := provider.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("corpus: embed query: %w", err)
	}
	qn, ok := distance.NormalizeL2Copy(q)
	if !ok {
		return nil, ErrZeroQueryEmbedding
	}
	return s.SearchVector(qn, topK, subset)
}

// SearchVector scores q against every row (or only subset rows), selects the
// topK highest cosine similarities, and returns them ordered descending with
// ties broken by row order. q must be unit-normalized.
//
// topK <= 0 and an empty corpus both yield an empty result; topK larger than
// the corpus is clamped.
func (s *Store) SearchVector(q []float32, topK int, subset *roaring.Bitmap) ([]Result, error) {
	st := s.state
	if topK <= 0 || st.Len() == 0 || !st.HasVectors() {
		return nil, nil
	}
	if len(q) != st.Dim {
		return nil, fmt.Errorf("corpus: query dim %d, corpus dim %d", len(q), st.Dim)
	}
	if topK > st.Len() {
		topK = st.Len()
	}

	top := queue.NewTopK(topK)
	if subset != nil {
		it := subset.Iterator()
		for it.HasNext() {
			row := it.Next()
			if int(row) >= st.Len() {
				break // bitmap rows are ascending
			}
			top.Push(queue.Item{Row: row, Score: distance.Dot(q, st.Vector(int(row)))})
		}
	} else {
		for row := 0; row < st.Len(); row++ {
			top.Push(queue.Item{Row: uint32(row), Score: distance.Dot(q, st.Vector(row))})
		}
	}

	items := top.Drain()
	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{Path: st.Paths[it.Row], Score: it.Score}
	}
	return results, nil
}

// VectorByPath returns the stored embedding for an indexed path.
func (s *Store) VectorByPath(path string) ([]float32, bool) {
	if !s.state.HasVectors() {
		return nil, false
	}
	for i, p := range s.state.Paths {
		if p == path {
			return s.state.Vector(i), true
		}
	}
	return nil, false
}
