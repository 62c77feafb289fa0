package inode

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/mhx/dwarfs-sub004/cache"
	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/fileview"
	"github.com/mhx/dwarfs-sub004/image"
	"github.com/mhx/dwarfs-sub004/metadata"
	"github.com/mhx/dwarfs-sub004/workergroup"
)

func buildInodeTestSectionBytes(sectionNumber uint32, payload []byte) []byte {
	const hdrSize = 64
	buf := make([]byte, hdrSize+len(payload))
	copy(buf[0:6], image.Magic[:])
	buf[6] = image.MajorVersion
	buf[7] = image.MinorVersion
	binary.LittleEndian.PutUint32(buf[48:52], sectionNumber)
	binary.LittleEndian.PutUint16(buf[52:54], uint16(image.TypeBlock))
	binary.LittleEndian.PutUint16(buf[54:56], uint16(image.CompressionNone))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(len(payload)))
	copy(buf[hdrSize:], payload)
	sum := xxh3.Hash(buf[16:])
	binary.LittleEndian.PutUint64(buf[8:16], sum)
	return buf
}

type inodeTestReaderAt struct{ data []byte }

func (r *inodeTestReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, r.data[off:]), nil
}

type inodeTestSource struct {
	blocks map[uint32]*image.Section
}

func (s *inodeTestSource) BlockSection(blockID uint32) (*image.Section, error) {
	return s.blocks[blockID], nil
}

// newTestBlockGetter builds a real cache.Cache backed by an in-memory
// image, since cache.BlockRange values can only be produced through the
// cache package's own API.
func newTestBlockGetter(t *testing.T, payloads ...[]byte) (*cache.Cache, *workergroup.Group) {
	t.Helper()
	var raw []byte
	for i, p := range payloads {
		raw = append(raw, buildInodeTestSectionBytes(uint32(i), p)...)
	}
	v := fileview.NewReaderAt(&inodeTestReaderAt{data: raw}, int64(len(raw)))
	p, err := image.NewParser(v, 0)
	require.NoError(t, err)

	src := &inodeTestSource{blocks: make(map[uint32]*image.Section)}
	for i := range payloads {
		sec, ok, err := p.NextSection()
		require.NoError(t, err)
		require.True(t, ok)
		src.blocks[uint32(i)] = sec
	}

	workers := workergroup.New(2, 8)
	c := cache.New(cache.Config{
		View:     v,
		Source:   src,
		Registry: codec.DefaultRegistry(),
		Workers:  workers,
	})
	return c, workers
}

func repeatingPayload(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b + byte(i)
	}
	return buf
}

func TestReaderReadAcrossChunksAndHole(t *testing.T) {
	blockA := repeatingPayload(0x10, 200)
	blockB := repeatingPayload(0x80, 200)
	bg, workers := newTestBlockGetter(t, blockA, blockB)
	defer workers.Close()

	chunks := []metadata.Chunk{
		{Block: 0, Offset: 0, Size: 50},
		{Block: 0, Offset: 0, Size: metadata.HoleSizeBit | 30},
		{Block: 1, Offset: 10, Size: 40},
	}
	r := NewReader(7, chunks, bg, NewOffsetCache(4))
	require.Equal(t, int64(120), r.Size())

	dest := make([]byte, 120)
	n, err := r.Read(context.Background(), dest, 0)
	require.NoError(t, err)
	require.Equal(t, 120, n)

	require.Equal(t, blockA[0:50], dest[0:50])
	require.Equal(t, make([]byte, 30), dest[50:80])
	require.Equal(t, blockB[10:50], dest[80:120])
}

func TestReaderReadSpanningChunkBoundary(t *testing.T) {
	blockA := repeatingPayload(0x10, 200)
	bg, workers := newTestBlockGetter(t, blockA)
	defer workers.Close()

	chunks := []metadata.Chunk{
		{Block: 0, Offset: 0, Size: 50},
		{Block: 0, Offset: 0, Size: metadata.HoleSizeBit | 30},
	}
	r := NewReader(1, chunks, bg, nil)

	dest := make([]byte, 20)
	n, err := r.Read(context.Background(), dest, 40)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, blockA[40:50], dest[0:10])
	require.Equal(t, make([]byte, 10), dest[10:20])
}

func TestReaderReadPastEOFTruncates(t *testing.T) {
	blockA := repeatingPayload(0x10, 200)
	bg, workers := newTestBlockGetter(t, blockA)
	defer workers.Close()

	chunks := []metadata.Chunk{{Block: 0, Offset: 0, Size: 50}}
	r := NewReader(1, chunks, bg, nil)

	dest := make([]byte, 100)
	n, err := r.Read(context.Background(), dest, 30)
	require.NoError(t, err)
	require.Equal(t, 20, n) // only 20 bytes remain past offset 30
	require.Equal(t, blockA[30:50], dest[0:20])
}

func TestReaderReadVReportsHolesAndRanges(t *testing.T) {
	blockA := repeatingPayload(0x10, 200)
	bg, workers := newTestBlockGetter(t, blockA)
	defer workers.Close()

	chunks := []metadata.Chunk{
		{Block: 0, Offset: 0, Size: 50},
		{Block: 0, Offset: 0, Size: metadata.HoleSizeBit | 30},
	}
	r := NewReader(1, chunks, bg, nil)

	out, err := r.ReadV(context.Background(), 0, 80)
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.False(t, out[0].Hole)
	require.Equal(t, int64(50), out[0].Length)
	require.Equal(t, blockA[0:50], out[0].Range.Bytes())
	out[0].Range.Release()

	require.True(t, out[1].Hole)
	require.Equal(t, int64(30), out[1].Length)
	require.Nil(t, out[1].Range)
}

func TestReaderOffsetCacheIsUpdatedOnRead(t *testing.T) {
	blockA := repeatingPayload(0x10, 200)
	bg, workers := newTestBlockGetter(t, blockA)
	defer workers.Close()

	chunks := make([]metadata.Chunk, 10)
	for i := range chunks {
		chunks[i] = metadata.Chunk{Block: 0, Offset: 0, Size: 10}
	}
	oc := NewOffsetCache(4)
	r := NewReader(5, chunks, bg, oc)

	dest := make([]byte, 10)
	_, err := r.Read(context.Background(), dest, 40) // chunk index 4
	require.NoError(t, err)

	idx, off := oc.Find(5, 40)
	require.Equal(t, 4, idx)
	require.Equal(t, int64(40), off)
}
