package reader

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/semaphore"

	"github.com/mhx/dwarfs-sub004/cache"
	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/fileview"
	"github.com/mhx/dwarfs-sub004/image"
	"github.com/mhx/dwarfs-sub004/inode"
	"github.com/mhx/dwarfs-sub004/metadata"
	"github.com/mhx/dwarfs-sub004/workergroup"
)

func buildReaderTestSectionBytes(sectionNumber uint32, payload []byte) []byte {
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

type readerTestReaderAt struct{ data []byte }

func (r *readerTestReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, r.data[off:]), nil
}

type readerTestSource struct {
	blocks map[uint32]*image.Section
}

func (s *readerTestSource) BlockSection(blockID uint32) (*image.Section, error) {
	return s.blocks[blockID], nil
}

func newTestInodeReader(t *testing.T, chunks []metadata.Chunk, payload []byte) (*inode.Reader, *workergroup.Group) {
	t.Helper()
	raw := buildReaderTestSectionBytes(0, payload)
	v := fileview.NewReaderAt(&readerTestReaderAt{data: raw}, int64(len(raw)))
	p, err := image.NewParser(v, 0)
	require.NoError(t, err)

	sec, ok, err := p.NextSection()
	require.NoError(t, err)
	require.True(t, ok)

	src := &readerTestSource{blocks: map[uint32]*image.Section{0: sec}}
	workers := workergroup.New(2, 8)
	c := cache.New(cache.Config{
		View:     v,
		Source:   src,
		Registry: codec.DefaultRegistry(),
		Workers:  workers,
	})
	return inode.NewReader(1, chunks, c, inode.NewOffsetCache(4)), workers
}

func payloadPattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func TestFileReaderYieldsBoundedLeases(t *testing.T) {
	payload := payloadPattern(300)
	chunks := []metadata.Chunk{{Block: 0, Offset: 0, Size: 300}}
	ir, workers := newTestInodeReader(t, chunks, payload)
	defer workers.Close()

	sem := semaphore.NewWeighted(100)
	fr := NewFileReader(ir, sem, 100)

	var collected []byte
	for !fr.Done() {
		b, err := fr.Next(context.Background())
		require.NoError(t, err)
		require.NotNil(t, b)
		for _, ro := range b.Ranges {
			require.False(t, ro.Hole)
			collected = append(collected, ro.Range.Bytes()...)
		}
		b.Release()
	}
	require.Equal(t, payload, collected)

	done, err := fr.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, done)
}

func TestFileReaderReleaseFreesSemaphorePermit(t *testing.T) {
	payload := payloadPattern(100)
	chunks := []metadata.Chunk{{Block: 0, Offset: 0, Size: 100}}
	ir, workers := newTestInodeReader(t, chunks, payload)
	defer workers.Close()

	sem := semaphore.NewWeighted(100)
	fr := NewFileReader(ir, sem, 100)

	b, err := fr.Next(context.Background())
	require.NoError(t, err)

	// The full 100-byte budget is held by the unreleased batch: a second
	// acquire of even 1 byte must fail under TryAcquire.
	require.False(t, sem.TryAcquire(1))

	b.Release()
	require.True(t, sem.TryAcquire(1))
	sem.Release(1)
}

func TestFileReaderHandlesHoles(t *testing.T) {
	payload := payloadPattern(50)
	chunks := []metadata.Chunk{
		{Block: 0, Offset: 0, Size: 50},
		{Size: metadata.HoleSizeBit | 20},
	}
	ir, workers := newTestInodeReader(t, chunks, payload)
	defer workers.Close()

	sem := semaphore.NewWeighted(1000)
	fr := NewFileReader(ir, sem, 1000)

	b, err := fr.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Ranges, 2)
	require.False(t, b.Ranges[0].Hole)
	require.True(t, b.Ranges[1].Hole)
	require.Equal(t, int64(20), b.Ranges[1].Length)
	b.Release()
}
