package photovec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lensmark/photovec/ann"
	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/corpus"
	"github.com/lensmark/photovec/distance"
	"github.com/lensmark/photovec/embedding"
)

// Manager owns one index directory: the corpus store plus the approximate
// backends persisted alongside it, with selection and fallback between them.
//
// A Manager is single-writer like the corpus store beneath it: callers
// serialize mutations (Upsert, Build, Restore) per index directory.
type Manager struct {
	blobs    blobstore.Store
	store    *corpus.Store
	codec    codec.Codec
	log      *Logger
	metrics  MetricsCollector
	backends map[ann.Kind]ann.Backend
}

// Open creates a Manager over a local index directory, creating it when
// missing and loading any persisted corpus.
func Open(dir string, optFns ...Option) (*Manager, error) {
	blobs, err := blobstore.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	return NewManager(blobs, optFns...), nil
}

// NewManager creates a Manager over an arbitrary blob store.
//
// Backend availability is resolved once here: every kind with a registered
// factory (or a WithBackendFactory override) gets an adapter, so Status is
// deterministic for the lifetime of the Manager.
func NewManager(blobs blobstore.Store, optFns ...Option) *Manager {
	opts := options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.codec == nil {
		opts.codec = codec.Default
	}
	if opts.logger == nil {
		opts.logger = NoopLogger()
	}
	if opts.metricsCollector == nil {
		opts.metricsCollector = NoopMetricsCollector{}
	}

	corpusOpts := append([]func(*corpus.Options){func(o *corpus.Options) {
		o.Codec = opts.codec
		o.Logger = opts.logger.Logger
	}}, opts.corpusOptFns...)

	m := &Manager{
		blobs:    blobs,
		store:    corpus.NewStore(blobs, corpusOpts...),
		codec:    opts.codec,
		log:      opts.logger,
		metrics:  opts.metricsCollector,
		backends: make(map[ann.Kind]ann.Backend),
	}
	for _, kind := range ann.Preference {
		if factory, ok := opts.factories[kind]; ok {
			m.backends[kind] = factory(blobs, opts.codec)
			continue
		}
		if ann.Registered(kind) {
			b, err := ann.New(kind, blobs, opts.codec)
			if err == nil {
				m.backends[kind] = b
			}
		}
	}
	return m
}

// Store exposes the underlying corpus store.
func (m *Manager) Store() *corpus.Store { return m.store }

// Upsert reconciles the corpus with the given photo files: embedding new and
// modified ones, pruning absent ones, and persisting the result. It returns
// how many rows were added and how many overwritten in place.
//
// Backends are not rebuilt here; Status reports them stale until the caller
// rebuilds.
func (m *Manager) Upsert(ctx context.Context, provider embedding.Provider, photos []corpus.PhotoFile, batchSize int) (newCount, updated int, err error) {
	start := time.Now()
	newCount, updated, err = m.store.Upsert(ctx, provider, photos, batchSize)
	m.metrics.RecordUpsert(newCount, updated, time.Since(start), err)
	m.log.LogUpsert(ctx, len(photos), newCount, updated, err)
	return newCount, updated, err
}

// Search embeds query and returns the topK most similar photos with exact
// cosine scores, plus metadata describing which path answered.
func (m *Manager) Search(ctx context.Context, provider embedding.Provider, query string, topK int, optFns ...SearchOption) ([]corpus.Result, Meta, error) {
	q, err := provider.EmbedText(ctx, query)
	if err != nil {
		return nil, Meta{Backend: ann.KindExact}, fmt.Errorf("photovec: embed query: %w", err)
	}
	qn, ok := distance.NormalizeL2Copy(q)
	if !ok {
		return nil, Meta{Backend: ann.KindExact}, corpus.ErrZeroQueryEmbedding
	}
	return m.SearchVector(ctx, qn, topK, optFns...)
}

// SearchLike looks up the stored embedding for an already-indexed path, runs
// the same search with it, and excludes the path itself from the results.
// The exclusion is applied after ranking, so topK refers to pre-filter rank.
func (m *Manager) SearchLike(ctx context.Context, path string, topK int, optFns ...SearchOption) ([]corpus.Result, Meta, error) {
	q, ok := m.store.VectorByPath(path)
	if !ok {
		return nil, Meta{Backend: ann.KindExact}, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}

	results, meta, err := m.SearchVector(ctx, q, topK, optFns...)
	if err != nil {
		return nil, meta, err
	}
	filtered := results[:0]
	for _, r := range results {
		if r.Path != path {
			filtered = append(filtered, r)
		}
	}
	return filtered, meta, nil
}

// SearchVector answers a search for an already unit-normalized query vector.
//
// Selection: without WithFast the exact scan answers directly. With a hint,
// the named backend is used only when it is available and built; anything
// else degrades to exact with Meta.Fallback set, never an error. With
// ann.KindAuto the first built backend in preference order answers. Backend
// candidates are always reranked with exact cosine similarity restricted to
// the candidate rows, so scores and ordering are backend-independent.
func (m *Manager) SearchVector(ctx context.Context, q []float32, topK int, optFns ...SearchOption) ([]corpus.Result, Meta, error) {
	start := time.Now()
	var so searchOptions
	for _, fn := range optFns {
		fn(&so)
	}

	results, meta, err := m.searchVector(ctx, q, topK, so)
	m.metrics.RecordSearch(topK, meta.Backend, meta.Fallback, time.Since(start), err)
	m.log.LogSearch(ctx, topK, len(results), meta, err)
	return results, meta, err
}

func (m *Manager) searchVector(ctx context.Context, q []float32, topK int, so searchOptions) ([]corpus.Result, Meta, error) {
	meta := Meta{Backend: ann.KindExact, Requested: so.hint, UseFast: so.useFast}

	exact := func() ([]corpus.Result, Meta, error) {
		results, err := m.store.SearchVector(q, topK, so.subset)
		return results, meta, err
	}

	if !so.useFast {
		return exact()
	}
	if so.hint == ann.KindExact {
		meta.Fallback = true
		return exact()
	}

	backend := m.selectBackend(ctx, so.hint)
	if backend == nil {
		meta.Fallback = true
		return exact()
	}

	k := topK
	if so.subset != nil {
		// Candidates are selected over the whole corpus, not the
		// subset; over-fetch so the intersection can still fill topK.
		k = topK * 4
		if n := m.store.State().Len(); k > n {
			k = n
		}
	}

	rows, err := backend.Candidates(ctx, q, k)
	if err != nil || len(rows) == 0 {
		// A backend that cannot answer degrades like one that is not
		// built. The error surfaces via logs, not the caller.
		m.log.WarnContext(ctx, "backend fallback",
			"kind", backend.Kind(),
			"error", err,
		)
		meta.Fallback = true
		return exact()
	}

	candidates := roaring.New()
	for _, row := range rows {
		if so.subset == nil || so.subset.Contains(row) {
			candidates.Add(row)
		}
	}
	if so.subset != nil {
		// The over-fetch may still have missed subset rows that exact
		// search would find. Returning a short list here would be
		// worse than the exact path, so degrade instead.
		want := uint64(topK)
		if c := so.subset.GetCardinality(); c < want {
			want = c
		}
		if candidates.GetCardinality() < want {
			meta.Fallback = true
			return exact()
		}
	}
	meta.Backend = backend.Kind()
	results, err := m.store.SearchVector(q, topK, candidates)
	return results, meta, err
}

// selectBackend resolves a hint to a usable backend, or nil to force the
// exact path.
func (m *Manager) selectBackend(ctx context.Context, hint ann.Kind) ann.Backend {
	if hint != "" && hint != ann.KindAuto {
		b, ok := m.backends[hint]
		if ok && b.Status(ctx).Built {
			return b
		}
		return nil
	}
	for _, kind := range ann.Preference {
		if b, ok := m.backends[kind]; ok && b.Status(ctx).Built {
			return b
		}
	}
	return nil
}

// Build constructs the sidecar index for one backend kind from the current
// corpus. It returns false with a nil error when there is nothing to build.
func (m *Manager) Build(ctx context.Context, kind ann.Kind) (bool, error) {
	backend, ok := m.backends[kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnavailable, kind)
	}

	start := time.Now()
	built, err := backend.Build(ctx, m.store.State())
	m.metrics.RecordBuild(kind, built, time.Since(start), err)
	m.log.LogBuild(ctx, kind, built, err)
	return built, err
}

// BuildAll builds every resolved backend concurrently and reports per-kind
// whether a sidecar was produced. The first build error aborts the rest.
func (m *Manager) BuildAll(ctx context.Context) (map[ann.Kind]bool, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	built := make(map[ann.Kind]bool, len(m.backends))
	for kind := range m.backends {
		kind := kind
		g.Go(func() error {
			ok, err := m.Build(ctx, kind)
			if err != nil {
				return err
			}
			mu.Lock()
			built[kind] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return built, nil
}

// Mirror copies the corpus blobs and every backend sidecar to dst, typically
// an S3 or MinIO store, overwriting blobs already there.
func (m *Manager) Mirror(ctx context.Context, dst blobstore.Store) error {
	err := blobstore.Copy(ctx, dst, m.blobs, "")
	m.log.LogMirror(ctx, "mirror", err)
	return err
}

// Restore pulls a mirrored index back from src and reloads the corpus.
func (m *Manager) Restore(ctx context.Context, src blobstore.Store) error {
	if err := blobstore.Copy(ctx, m.blobs, src, ""); err != nil {
		m.log.LogMirror(ctx, "restore", err)
		return err
	}
	m.store.Load(ctx)
	m.log.LogMirror(ctx, "restore", nil)
	return nil
}
