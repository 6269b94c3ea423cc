package flat

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram-go/pkg/index"
)

func TestNew_InvalidDimensions(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)

	err = ix.Add(context.Background(), 1, []float64{1, 0})
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}

func TestAdd_ReplaceExisting(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(ctx, 1, []float64{0, 1, 0}))
	assert.Equal(t, 1, ix.Size())

	hits, err := ix.Search(ctx, []float64{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
}

func TestSearch_Ordering(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(ctx, 2, []float64{0, 1, 0}))
	require.NoError(t, ix.Add(ctx, 3, []float64{0.9, 0.1, 0}))

	hits, err := ix.Search(ctx, []float64{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, int64(3), hits[1].ID)
	assert.Equal(t, int64(2), hits[2].ID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
	assert.LessOrEqual(t, hits[1].Distance, hits[2].Distance)
}

func TestSearch_KLargerThanSize(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))

	hits, err := ix.Search(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_Empty(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)

	hits, err := ix.Search(context.Background(), []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRemove(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))
	require.NoError(t, ix.Add(ctx, 2, []float64{0, 1}))

	require.NoError(t, ix.Remove(ctx, 1))
	assert.Equal(t, 1, ix.Size())

	// Removing an absent ID is a no-op.
	require.NoError(t, ix.Remove(ctx, 99))
	assert.Equal(t, 1, ix.Size())

	hits, err := ix.Search(ctx, []float64{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")
	ctx := context.Background()

	ix, err := New(3)
	require.NoError(t, err)
	require.NoError(t, ix.Add(ctx, 10, []float64{1, 0, 0}))
	require.NoError(t, ix.Add(ctx, 20, []float64{0, 1, 0}))
	require.NoError(t, ix.Save(ctx, path))

	loaded, err := New(3)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(ctx, path))
	assert.Equal(t, 2, loaded.Size())

	hits, err := loaded.Search(ctx, []float64{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(10), hits[0].ID)
}

func TestLoad_MissingFiles(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)

	err = ix.Load(context.Background(), filepath.Join(t.TempDir(), "absent.idx"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoad_MissingMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")
	ctx := context.Background()

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))
	require.NoError(t, ix.Save(ctx, path))

	// Drop the mapping sidecar; the pair is now inconsistent.
	require.NoError(t, os.Remove(path+MappingSuffix))

	loaded, err := New(2)
	require.NoError(t, err)
	err = loaded.Load(ctx, path)
	assert.ErrorIs(t, err, index.ErrCorrupt)
}

func TestLoad_CorruptMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")
	ctx := context.Background()

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))
	require.NoError(t, ix.Save(ctx, path))

	require.NoError(t, os.WriteFile(path+MappingSuffix, []byte("{garbage"), 0644))

	loaded, err := New(2)
	require.NoError(t, err)
	err = loaded.Load(ctx, path)
	assert.ErrorIs(t, err, index.ErrCorrupt)
}

func TestLoad_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.idx")
	ctx := context.Background()

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))
	require.NoError(t, ix.Save(ctx, path))

	loaded, err := New(4)
	require.NoError(t, err)
	err = loaded.Load(ctx, path)
	assert.ErrorIs(t, err, index.ErrCorrupt)
}

func TestClear(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, 1, []float64{1, 0}))
	require.NoError(t, ix.Clear(ctx))
	assert.Equal(t, 0, ix.Size())
	assert.Equal(t, 2, ix.Dimensions())
}
