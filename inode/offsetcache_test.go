package inode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetCacheFreshLookupReturnsZero(t *testing.T) {
	oc := NewOffsetCache(4)
	idx, off := oc.Find(1, 12345)
	require.Equal(t, 0, idx)
	require.Equal(t, int64(0), off)
}

func TestOffsetCacheLastAccessFastPath(t *testing.T) {
	oc := NewOffsetCache(4)
	oc.Update(1, 8, 800, 100)

	idx, off := oc.Find(1, 800)
	require.Equal(t, 8, idx)
	require.Equal(t, int64(800), off)

	idx, off = oc.Find(1, 900) // inclusive upper bound
	require.Equal(t, 8, idx)
	require.Equal(t, int64(800), off)

	idx, off = oc.Find(1, 850)
	require.Equal(t, 8, idx)
	require.Equal(t, int64(800), off)
}

func TestOffsetCacheGrowsSparseTableOnIntervalBoundary(t *testing.T) {
	oc := NewOffsetCache(4)
	oc.Update(1, 4, 400, 100) // interval boundary: recorded
	oc.Update(1, 5, 500, 100) // not a boundary: last-access only
	oc.Update(1, 8, 800, 100) // interval boundary: recorded

	// Outside the most recent last-access window (800..900), falls back
	// to the sparse table built from the two boundary updates.
	idx, off := oc.Find(1, 450)
	require.Equal(t, 4, idx)
	require.Equal(t, int64(400), off)

	idx, off = oc.Find(1, 50)
	require.Equal(t, 0, idx)
	require.Equal(t, int64(0), off)
}

func TestOffsetCacheSubIntervalChunkDoesNotGrowTable(t *testing.T) {
	oc := NewOffsetCache(4)
	oc.Update(1, 1, 100, 50) // below the interval, never recorded sparsely
	idx, off := oc.Find(1, 30)
	require.Equal(t, 0, idx)
	require.Equal(t, int64(0), off)
}

func TestOffsetCacheIsPerInode(t *testing.T) {
	oc := NewOffsetCache(4)
	oc.Update(1, 8, 800, 100)
	oc.Update(2, 4, 400, 50)

	idx, off := oc.Find(2, 400)
	require.Equal(t, 4, idx)
	require.Equal(t, int64(400), off)

	idx, off = oc.Find(1, 800)
	require.Equal(t, 8, idx)
	require.Equal(t, int64(800), off)
}
