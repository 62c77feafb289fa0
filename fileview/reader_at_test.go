package fileview

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderAtCopyBytes(t *testing.T) {
	data := []byte("0123456789")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	dest := make([]byte, 4)
	require.NoError(t, v.CopyBytes(dest, 3, 4))
	require.Equal(t, []byte("3456"), dest)
}

func TestReaderAtCopyBytesOutOfRange(t *testing.T) {
	data := []byte("short")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	err := v.CopyBytes(make([]byte, 4), 3, 10)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestReaderAtCopyBytesDestTooSmall(t *testing.T) {
	data := []byte("0123456789")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	err := v.CopyBytes(make([]byte, 2), 0, 4)
	require.Error(t, err)
}

func TestReaderAtSegmentAt(t *testing.T) {
	data := []byte("hello world")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	seg, err := v.SegmentAt(6, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), seg.Bytes())
	seg.Release()
}

func TestReaderAtExtentsReportsSingleDataExtent(t *testing.T) {
	data := []byte("0123456789")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))

	extents, err := v.Extents(2, 5)
	require.NoError(t, err)
	require.Equal(t, []Extent{{Offset: 2, Size: 5, Hole: false}}, extents)
}

func TestReaderAtSize(t *testing.T) {
	data := []byte("0123456789")
	v := NewReaderAt(bytes.NewReader(data), int64(len(data)))
	require.Equal(t, int64(10), v.Size())
}

func TestSegmentRetainReleaseOnlyFreesOnce(t *testing.T) {
	var freed int
	s := NewSegment([]byte("x"), func() { freed++ })
	s.Retain()
	s.Release()
	require.Equal(t, 0, freed)
	s.Release()
	require.Equal(t, 1, freed)
}
