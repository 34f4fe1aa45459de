package ann_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensmark/photovec/ann"
	_ "github.com/lensmark/photovec/ann/annoy"
	_ "github.com/lensmark/photovec/ann/flat"
	_ "github.com/lensmark/photovec/ann/hnsw"
	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/corpus"
)

func TestRegisteredKinds(t *testing.T) {
	assert.Equal(t, []ann.Kind{ann.KindAnnoy, ann.KindFlat, ann.KindHNSW}, ann.Kinds())
	assert.True(t, ann.Registered(ann.KindFlat))
	assert.False(t, ann.Registered(ann.KindExact))
}

func TestNewBackendPerKind(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	for _, kind := range ann.Preference {
		b, err := ann.New(kind, blobs, nil)
		require.NoError(t, err)
		assert.Equal(t, kind, b.Kind())
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := ann.New("faiss", blobstore.NewMemoryStore(), nil)
	require.ErrorIs(t, err, ann.ErrUnknownKind)
}

func TestSidecarRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	meta := ann.Metadata{Kind: ann.KindFlat, Dim: 4, Size: 2}
	payload := []byte("candidate index payload")
	require.NoError(t, ann.WriteSidecar(ctx, blobs, nil, ann.KindFlat, meta, payload))

	var got ann.Metadata
	data, err := ann.ReadSidecar(ctx, blobs, nil, ann.KindFlat, &got)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, meta, got)
}

func TestSidecarCodecSelfDescribing(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	// The metadata record names its own codec; a reader configured with a
	// different codec must still resolve and decode it.
	meta := ann.Metadata{Kind: ann.KindFlat, Dim: 4, Size: 2, Codec: codec.JSON{}.Name()}
	require.NoError(t, blobs.Create(ctx, ann.MetaName(ann.KindFlat),
		codec.MustMarshal(codec.JSON{}, meta)))
	require.NoError(t, blobs.Create(ctx, ann.BlobName(ann.KindFlat), []byte("payload")))

	got, built, err := ann.ProbeSidecar(ctx, blobs, codec.GoJSON{}, ann.KindFlat)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, meta, got)
	assert.Equal(t, "json", got.Codec)
}

func TestBuildStampsCodecName(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	backend, err := ann.New(ann.KindFlat, blobs, codec.JSON{})
	require.NoError(t, err)

	st := corpus.NewState()
	st.Dim = 2
	st.Paths = []string{"/photos/a.jpg"}
	st.MTimes = []float64{1}
	st.Vectors = []float32{1, 0}
	built, err := backend.Build(ctx, st)
	require.NoError(t, err)
	require.True(t, built)

	meta, ok, err := ann.ProbeSidecar(ctx, blobs, nil, ann.KindFlat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "json", meta.Codec)
}

func TestProbeSidecar(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	// Nothing written: not built, no error.
	_, built, err := ann.ProbeSidecar(ctx, blobs, nil, ann.KindHNSW)
	require.NoError(t, err)
	assert.False(t, built)

	meta := ann.Metadata{Kind: ann.KindHNSW, Dim: 8, Size: 100}
	require.NoError(t, ann.WriteSidecar(ctx, blobs, nil, ann.KindHNSW, meta, []byte("graph")))

	got, built, err := ann.ProbeSidecar(ctx, blobs, nil, ann.KindHNSW)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, meta, got)

	// Metadata without its index blob counts as not built.
	require.NoError(t, blobs.Delete(ctx, ann.BlobName(ann.KindHNSW)))
	_, built, err = ann.ProbeSidecar(ctx, blobs, nil, ann.KindHNSW)
	require.NoError(t, err)
	assert.False(t, built)

	// Corrupt metadata is an error, not a silent not-built.
	require.NoError(t, blobs.Create(ctx, ann.MetaName(ann.KindHNSW), []byte("{not json")))
	_, _, err = ann.ProbeSidecar(ctx, blobs, codec.JSON{}, ann.KindHNSW)
	require.Error(t, err)
}
