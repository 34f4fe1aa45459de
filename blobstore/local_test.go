package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, "corpus.json", []byte(`{"paths":[]}`)))
	require.NoError(t, store.Create(ctx, "flat.index", []byte{1, 2, 3}))
	require.NoError(t, store.Create(ctx, "flat.meta.json", []byte(`{}`)))

	data, err := store.Open(ctx, "corpus.json")
	require.NoError(t, err)
	require.Equal(t, `{"paths":[]}`, string(data))

	names, err := store.List(ctx, "flat.")
	require.NoError(t, err)
	require.Equal(t, []string{"flat.index", "flat.meta.json"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, names, 3)

	require.NoError(t, store.Delete(ctx, "flat.index"))
	_, err = store.Open(ctx, "flat.index")
	require.True(t, errors.Is(err, os.ErrNotExist))

	// Deleting a missing blob is not an error.
	require.NoError(t, store.Delete(ctx, "flat.index"))
}

func TestLocalStoreCreateReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, "blob", []byte("v1")))
	require.NoError(t, store.Create(ctx, "blob", []byte("v2")))

	data, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	// No temp litter left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "blob", entries[0].Name())
	require.Equal(t, dir, filepath.Dir(filepath.Join(dir, entries[0].Name())))
}

func TestMemoryStoreCopy(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	dst := NewMemoryStore()

	require.NoError(t, src.Create(ctx, "a", []byte("1")))
	require.NoError(t, src.Create(ctx, "b", []byte("2")))
	require.NoError(t, src.Create(ctx, "other", []byte("3")))

	require.NoError(t, Copy(ctx, dst, src, ""))
	require.Equal(t, 3, dst.Len())

	got, err := dst.Open(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "2", string(got))

	_, err = dst.Open(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}
