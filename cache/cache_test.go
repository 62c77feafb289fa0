package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/fileview"
	"github.com/mhx/dwarfs-sub004/image"
	"github.com/mhx/dwarfs-sub004/workergroup"
)

// buildBlockSectionBytes encodes one section_header_v2 plus payload,
// matching image.SectionHeaderV2's wire layout, with a valid xxh3_64
// checksum so the cache's integrity check passes without the test needing
// image's own (unexported) encoder.
func buildBlockSectionBytes(sectionNumber uint32, payload []byte) []byte {
	const hdrSize = 64
	buf := make([]byte, hdrSize+len(payload))
	copy(buf[0:6], image.Magic[:])
	buf[6] = image.MajorVersion
	buf[7] = image.MinorVersion
	// buf[8:16] xxh3 placeholder, filled below
	// buf[16:48] sha512_256, left zero (unused by this fast check)
	binary.LittleEndian.PutUint32(buf[48:52], sectionNumber)
	binary.LittleEndian.PutUint16(buf[52:54], uint16(image.TypeBlock))
	binary.LittleEndian.PutUint16(buf[54:56], uint16(image.CompressionNone))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(len(payload)))
	copy(buf[hdrSize:], payload)

	sum := xxh3.Hash(buf[16:])
	binary.LittleEndian.PutUint64(buf[8:16], sum)
	return buf
}

func buildTestImage(payloads ...[]byte) []byte {
	var out []byte
	for i, p := range payloads {
		out = append(out, buildBlockSectionBytes(uint32(i), p)...)
	}
	return out
}

// bytesReaderAt is a minimal io.ReaderAt over an in-memory byte slice.
type bytesReaderAt struct{ data []byte }

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, r.data[off:]), nil
}

// fakeSource maps block ids to sections parsed out of a single in-memory
// image, the way the filesystem facade maps block numbers in fs.go.
type fakeSource struct {
	blocks map[uint32]*image.Section
}

func (s *fakeSource) BlockSection(blockID uint32) (*image.Section, error) {
	sec, ok := s.blocks[blockID]
	if !ok {
		return nil, errUnknownBlock
	}
	return sec, nil
}

var errUnknownBlock = errors.New("cache_test: unknown block")

func newTestCache(t *testing.T, maxBytes uint64, payloads ...[]byte) (*Cache, *workergroup.Group) {
	t.Helper()
	raw := buildTestImage(payloads...)
	v := fileview.NewReaderAt(&bytesReaderAt{data: raw}, int64(len(raw)))

	p, err := image.NewParser(v, 0)
	require.NoError(t, err)

	src := &fakeSource{blocks: make(map[uint32]*image.Section)}
	for i := range payloads {
		sec, ok, err := p.NextSection()
		require.NoError(t, err)
		require.True(t, ok)
		src.blocks[uint32(i)] = sec
	}

	workers := workergroup.New(2, 8)
	c := New(Config{
		View:     v,
		Source:   src,
		Registry: codec.DefaultRegistry(),
		MaxBytes: maxBytes,
		Workers:  workers,
	})
	return c, workers
}

func TestCacheGetReturnsRequestedRange(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	c, workers := newTestCache(t, 0, payload)
	defer workers.Close()

	fut, err := c.Get(context.Background(), 0, 100, 50)
	require.NoError(t, err)
	rng, err := fut.Wait()
	require.NoError(t, err)
	defer rng.Release()

	require.Equal(t, payload[100:150], rng.Bytes())
}

func TestCacheGetSharesInFlightDecompression(t *testing.T) {
	payload := make([]byte, 8192)
	c, workers := newTestCache(t, 0, payload)
	defer workers.Close()

	var wg sync.WaitGroup
	ranges := make([]*BlockRange, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			fut, err := c.Get(context.Background(), 0, int64(i*100), 50)
			require.NoError(t, err)
			rng, err := fut.Wait()
			require.NoError(t, err)
			ranges[i] = rng
		}()
	}
	wg.Wait()
	for i, rng := range ranges {
		require.Equal(t, payload[i*100:i*100+50], rng.Bytes())
		rng.Release()
	}

	cur, _ := c.Stats()
	require.Greater(t, cur, uint64(0))
}

func TestCacheGetRejectsUnknownBlock(t *testing.T) {
	c, workers := newTestCache(t, 0, []byte("x"))
	defer workers.Close()

	fut, err := c.Get(context.Background(), 99, 0, 1)
	require.NoError(t, err)
	_, err = fut.Wait()
	require.Error(t, err)
}

func TestCacheEvictsUnreferencedEntriesUnderBudget(t *testing.T) {
	payloadA := make([]byte, 100)
	payloadB := make([]byte, 100)
	for i := range payloadB {
		payloadB[i] = 0xff
	}
	// Each block reserves 4x its length (400 bytes) at admission, reconciled
	// to its real 100 bytes once decompressed; 100 + 400 exceeds 450 bytes
	// of budget, so B's admission forces A's eviction.
	c, workers := newTestCache(t, 450, payloadA, payloadB)
	defer workers.Close()

	futA, err := c.Get(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	rngA, err := futA.Wait()
	require.NoError(t, err)
	rngA.Release() // no outstanding refs, so block A is now evictable

	futB, err := c.Get(context.Background(), 1, 0, 10)
	require.NoError(t, err)
	rngB, err := futB.Wait()
	require.NoError(t, err)
	defer rngB.Release()
	require.Equal(t, payloadB[0:10], rngB.Bytes())
}

func TestCacheGetRespectsContextCancellationWhenCapacityUnavailable(t *testing.T) {
	payloadA := make([]byte, 100)
	payloadB := make([]byte, 100)
	// A's 400-byte (4x) reservation is reconciled to 100 bytes once it is
	// decompressed; B's 400-byte reservation on top of that exceeds 450, so
	// block B can never be admitted while A's range is outstanding.
	c, workers := newTestCache(t, 450, payloadA, payloadB)
	defer workers.Close()

	futA, err := c.Get(context.Background(), 0, 0, 10)
	require.NoError(t, err)
	rngA, err := futA.Wait()
	require.NoError(t, err)
	defer rngA.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	futB, err := c.Get(ctx, 1, 0, 10)
	require.NoError(t, err) // Get itself never fails; admission blocks inside it
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	_, err = futB.Wait()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
