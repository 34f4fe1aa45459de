package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/require"

	"github.com/lensmark/photovec/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.Provider, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	provider := testutil.NewProvider(3)
	provider.Set("/p/a.jpg", []float32{1, 0, 0})
	provider.Set("/p/b.jpg", []float32{0, 1, 0})
	provider.Set("/p/c.jpg", []float32{0, 0, 1})
	return store, provider, dir
}

func threePhotos() []PhotoFile {
	return []PhotoFile{
		{Path: "/p/a.jpg", MTime: 100},
		{Path: "/p/b.jpg", MTime: 100},
		{Path: "/p/c.jpg", MTime: 100},
	}
}

func TestUpsertIdempotence(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	newCount, updated, err := store.Upsert(ctx, provider, threePhotos(), 2)
	require.NoError(t, err)
	require.Equal(t, 3, newCount)
	require.Equal(t, 0, updated)

	newCount, updated, err = store.Upsert(ctx, provider, threePhotos(), 2)
	require.NoError(t, err)
	require.Equal(t, 0, newCount)
	require.Equal(t, 0, updated)
}

func TestUpsertDetectsModification(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	photos := threePhotos()
	photos[1].MTime = 200 // b.jpg touched
	provider.Set("/p/b.jpg", []float32{0, 0.6, 0.8})

	newCount, updated, err := store.Upsert(ctx, provider, photos, 8)
	require.NoError(t, err)
	require.Equal(t, 0, newCount)
	require.Equal(t, 1, updated)

	// Row overwritten in place: b stays at row 1.
	require.Equal(t, "/p/b.jpg", store.State().Paths[1])
	require.InDelta(t, 0.6, store.State().Vector(1)[1], 1e-6)
	require.Equal(t, float64(200), store.State().MTimes[1])
}

func TestUpsertMTimeJitterIgnored(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	photos := threePhotos()
	photos[0].MTime = 100 + 1e-7 // below the epsilon

	newCount, updated, err := store.Upsert(ctx, provider, photos, 8)
	require.NoError(t, err)
	require.Zero(t, newCount)
	require.Zero(t, updated)
}

func TestUpsertPruning(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)
	require.Equal(t, 3, store.State().Len())

	// b.jpg deleted from disk.
	photos := []PhotoFile{
		{Path: "/p/a.jpg", MTime: 100},
		{Path: "/p/c.jpg", MTime: 100},
	}
	newCount, updated, err := store.Upsert(ctx, provider, photos, 8)
	require.NoError(t, err)
	require.Zero(t, newCount)
	require.Zero(t, updated)
	require.Equal(t, 2, store.State().Len())
	require.Equal(t, []string{"/p/a.jpg", "/p/c.jpg"}, store.State().Paths)
	// Matrix stays aligned: row 1 is now c's basis vector.
	require.Equal(t, float32(1), store.State().Vector(1)[2])
}

func TestUpsertDropsZeroNormEmbeddings(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	photos := append(threePhotos(), PhotoFile{Path: "/p/broken.jpg", MTime: 100})
	// /p/broken.jpg is unknown to the provider and embeds to a zero row.

	newCount, updated, err := store.Upsert(ctx, provider, photos, 8)
	require.NoError(t, err)
	require.Equal(t, 3, newCount)
	require.Zero(t, updated)
	require.Equal(t, 3, store.State().Len())
	require.NotContains(t, store.State().Paths, "/p/broken.jpg")
}

func TestUpsertBatching(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, provider.ImageCalls)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, provider, dir := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)
	want := store.State()

	reopened, err := Open(dir)
	require.NoError(t, err)
	got := reopened.State()

	require.Equal(t, want.Paths, got.Paths)
	require.Equal(t, want.MTimes, got.MTimes)
	require.Equal(t, want.Dim, got.Dim)
	require.Equal(t, want.Vectors, got.Vectors, "float32 values must round-trip exactly")
}

func TestSaveIdempotent(t *testing.T) {
	store, provider, dir := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, EmbeddingsBlobName))
	require.NoError(t, err)
	firstPaths, err := os.ReadFile(filepath.Join(dir, PathsBlobName))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx))

	second, err := os.ReadFile(filepath.Join(dir, EmbeddingsBlobName))
	require.NoError(t, err)
	secondPaths, err := os.ReadFile(filepath.Join(dir, PathsBlobName))
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, firstPaths, secondPaths)
}

func TestSearchRanking(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	provider.Set("axis-x", []float32{1, 0, 0})
	results, err := store.Search(ctx, provider, "axis-x", 10, nil)
	require.NoError(t, err)

	require.Len(t, results, 3, "topK beyond corpus size is clamped")
	require.Equal(t, "/p/a.jpg", results[0].Path)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	// Zero-score ties keep row order.
	require.Equal(t, "/p/b.jpg", results[1].Path)
	require.Equal(t, "/p/c.jpg", results[2].Path)
	require.InDelta(t, 0.0, results[1].Score, 1e-6)
}

func TestSearchSubset(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	subset := roaring.BitmapOf(1, 2) // exclude row 0 (a.jpg)
	provider.Set("axis-x", []float32{1, 0, 0})
	results, err := store.Search(ctx, provider, "axis-x", 10, subset)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "/p/b.jpg", results[0].Path)
	require.Equal(t, "/p/c.jpg", results[1].Path)
}

func TestSearchEdgeCases(t *testing.T) {
	store, _, _ := newTestStore(t)

	results, err := store.SearchVector([]float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Empty(t, results, "empty corpus yields empty results")

	results, err = store.SearchVector([]float32{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	require.Empty(t, results, "topK <= 0 yields empty results")
}

func TestLoadCorruptPathsRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PathsBlobName), []byte(`{"paths":["/p/a.jpg"`), 0o644))

	store, err := Open(dir)
	require.NoError(t, err, "corruption must never prevent restart")
	require.Equal(t, 0, store.State().Len())
}

func TestLoadTruncatedEmbeddingsBlob(t *testing.T) {
	store, provider, dir := newTestStore(t)
	ctx := context.Background()
	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	blobPath := filepath.Join(dir, EmbeddingsBlobName)
	blob, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(blobPath, blob[:len(blob)/2], 0o644))

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, 0, reopened.State().Len())
}

func TestLoadMissingEmbeddingsBlob(t *testing.T) {
	store, provider, dir := newTestStore(t)
	ctx := context.Background()
	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, EmbeddingsBlobName)))

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, 0, reopened.State().Len(), "paths without a matrix reset to empty")
}

func TestVectorByPath(t *testing.T) {
	store, provider, _ := newTestStore(t)
	ctx := context.Background()
	_, _, err := store.Upsert(ctx, provider, threePhotos(), 8)
	require.NoError(t, err)

	v, ok := store.VectorByPath("/p/b.jpg")
	require.True(t, ok)
	require.Equal(t, float32(1), v[1])

	_, ok = store.VectorByPath("/p/unknown.jpg")
	require.False(t, ok)
}

func TestIndexStatusRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, ok, err := ReadIndexStatus(ctx, store.Blobs(), nil)
	require.NoError(t, err)
	require.False(t, ok)

	st := IndexStatus{Phase: "embedding", Done: 10, Total: 40}
	require.NoError(t, WriteIndexStatus(ctx, store.Blobs(), nil, st))

	got, ok, err := ReadIndexStatus(ctx, store.Blobs(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "embedding", got.Phase)
	require.Equal(t, 10, got.Done)
}
