package flat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensmark/photovec/ann"
	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/corpus"
	"github.com/lensmark/photovec/testutil"
)

func stateFromVectors(vecs [][]float32) *corpus.State {
	st := corpus.NewState()
	if len(vecs) == 0 {
		return st
	}
	st.Dim = len(vecs[0])
	for i, v := range vecs {
		st.Paths = append(st.Paths, fmt.Sprintf("/photos/%04d.jpg", i))
		st.MTimes = append(st.MTimes, float64(i))
		st.Vectors = append(st.Vectors, v...)
	}
	return st
}

func TestBuildAndCandidates(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	b := New(blobs, nil)

	vecs := [][]float32{
		testutil.BasisVector(4, 0),
		testutil.BasisVector(4, 1),
		testutil.BasisVector(4, 2),
	}
	built, err := b.Build(ctx, stateFromVectors(vecs))
	require.NoError(t, err)
	require.True(t, built)

	rows, err := b.Candidates(ctx, testutil.BasisVector(4, 1), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint32(1), rows[0])
}

func TestBuildEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	b := New(blobstore.NewMemoryStore(), nil)

	built, err := b.Build(ctx, corpus.NewState())
	require.NoError(t, err)
	assert.False(t, built)
}

func TestCandidatesNotBuilt(t *testing.T) {
	ctx := context.Background()
	b := New(blobstore.NewMemoryStore(), nil)

	_, err := b.Candidates(ctx, testutil.BasisVector(4, 0), 3)
	require.ErrorIs(t, err, ann.ErrNotBuilt)
}

func TestCandidatesDimMismatch(t *testing.T) {
	ctx := context.Background()
	b := New(blobstore.NewMemoryStore(), nil)

	_, err := b.Build(ctx, stateFromVectors(testutil.RandomUnitVectors(5, 8, 1)))
	require.NoError(t, err)

	_, err = b.Candidates(ctx, testutil.BasisVector(4, 0), 3)
	require.ErrorIs(t, err, ann.ErrDimMismatch)
}

func TestReloadFromBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	vecs := testutil.RandomUnitVectors(32, 8, 7)
	_, err := New(blobs, nil).Build(ctx, stateFromVectors(vecs))
	require.NoError(t, err)

	reloaded := New(blobs, nil)
	rows, err := reloaded.Candidates(ctx, vecs[13], 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint32(13), rows[0])
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	b := New(blobs, nil)

	st := b.Status(ctx)
	assert.True(t, st.Available)
	assert.False(t, st.Built)
	assert.Empty(t, st.Err)

	_, err := b.Build(ctx, stateFromVectors(testutil.RandomUnitVectors(10, 6, 3)))
	require.NoError(t, err)

	st = b.Status(ctx)
	assert.True(t, st.Built)
	assert.Equal(t, 10, st.Size)
	assert.Equal(t, 6, st.Dim)
}
