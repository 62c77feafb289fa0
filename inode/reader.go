package inode

import (
	"context"
	"fmt"

	"github.com/mhx/dwarfs-sub004/cache"
	"github.com/mhx/dwarfs-sub004/metadata"
)

// ChunkSource supplies an inode's chunk list, the way metadata.Tree
// would for a regular file inode.
type ChunkSource interface {
	Chunks(ino uint32) ([]metadata.Chunk, error)
}

// BlockGetter fetches a byte range of a block from the cache.
type BlockGetter interface {
	Get(ctx context.Context, blockID uint32, offsetInBlock, size int64) (*cache.Future[*cache.BlockRange], error)
}

// Reader turns inode-relative reads into block-cache requests,
// resolving holes locally and using an OffsetCache to avoid scanning
// every chunk for files with many of them (spec.md's inode reader).
type Reader struct {
	ino     uint32
	chunks  []metadata.Chunk
	offsets []int64 // offsets[i] = file offset at which chunks[i] begins

	source BlockGetter
	oc     *OffsetCache
}

// NewReader builds a Reader for ino from its chunk list.
func NewReader(ino uint32, chunks []metadata.Chunk, source BlockGetter, oc *OffsetCache) *Reader {
	offsets := make([]int64, len(chunks)+1)
	var pos int64
	for i, c := range chunks {
		offsets[i] = pos
		pos += int64(c.Length())
	}
	offsets[len(chunks)] = pos
	return &Reader{ino: ino, chunks: chunks, offsets: offsets, source: source, oc: oc}
}

// Size is the inode's total logical byte length.
func (r *Reader) Size() int64 { return r.offsets[len(r.offsets)-1] }

// chunkAt returns the index of the chunk containing file offset off,
// and that chunk's starting file offset, using the offset cache to
// skip ahead rather than scanning from chunk 0 (spec.md step 1).
func (r *Reader) chunkAt(off int64) (int, int64) {
	startIdx := 0
	if r.oc != nil {
		startIdx, _ = r.oc.Find(r.ino, off)
	}
	if startIdx >= len(r.chunks) {
		startIdx = 0
	}
	for i := startIdx; i < len(r.chunks); i++ {
		end := r.offsets[i+1]
		if off < end {
			return i, r.offsets[i]
		}
	}
	return len(r.chunks), r.offsets[len(r.offsets)-1]
}

// Segment describes one overlapping chunk's contribution to a read.
type Segment struct {
	Chunk      metadata.Chunk
	ChunkStart int64 // file offset at which Chunk begins
	FileOffset int64 // offset within the requested read, not the file
	Length     int64
}

// planRead computes the ordered list of chunks overlapping
// [offset, offset+size) along with each one's placement within the
// destination buffer.
func (r *Reader) planRead(offset, size int64) ([]Segment, error) {
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf("inode: invalid read range [%d,+%d)", offset, size)
	}
	end := offset + size
	total := r.offsets[len(r.offsets)-1]
	if end > total {
		end = total
	}
	if offset >= end {
		return nil, nil
	}

	idx, chunkStart := r.chunkAt(offset)
	var segs []Segment
	for idx < len(r.chunks) && chunkStart < end {
		c := r.chunks[idx]
		chunkEnd := chunkStart + int64(c.Length())
		lo := offset
		if chunkStart > lo {
			lo = chunkStart
		}
		hi := end
		if chunkEnd < hi {
			hi = chunkEnd
		}
		if hi > lo {
			segs = append(segs, Segment{
				Chunk:      c,
				ChunkStart: chunkStart,
				FileOffset: lo - offset,
				Length:     hi - lo,
			})
			if r.oc != nil {
				r.oc.Update(r.ino, idx, chunkStart, int64(c.Length()))
			}
		}
		chunkStart = chunkEnd
		idx++
	}
	return segs, nil
}

// Read fills dest with up to len(dest) bytes starting at offset,
// returning the number of bytes actually filled (short only at EOF).
func (r *Reader) Read(ctx context.Context, dest []byte, offset int64) (int, error) {
	segs, err := r.planRead(offset, int64(len(dest)))
	if err != nil {
		return 0, err
	}
	var n int
	for _, seg := range segs {
		segOffInChunk := offset + seg.FileOffset - seg.ChunkStart
		if seg.Chunk.IsHole() {
			for i := int64(0); i < seg.Length; i++ {
				dest[seg.FileOffset+i] = 0
			}
		} else {
			fut, err := r.source.Get(ctx, seg.Chunk.Block, int64(seg.Chunk.Offset)+segOffInChunk, seg.Length)
			if err != nil {
				return n, err
			}
			rng, err := fut.Wait()
			if err != nil {
				return n, err
			}
			copy(dest[seg.FileOffset:seg.FileOffset+seg.Length], rng.Bytes())
			rng.Release()
		}
		n = int(seg.FileOffset + seg.Length)
	}
	return n, nil
}

// ReadV is the iovec-oriented counterpart to Read: it returns one
// BlockRange per overlapping, non-hole chunk (holes are reported with a
// nil Range and their Length set), letting callers avoid an extra copy
// into an intermediate buffer.
type RangeOrHole struct {
	Range  *cache.BlockRange
	Hole   bool
	Length int64
}

// ReadV resolves [offset, offset+size) into a list of block ranges
// and/or holes, in file order, without copying chunk data into a
// caller-supplied buffer (spec.md's readv / future-list variant).
func (r *Reader) ReadV(ctx context.Context, offset, size int64) ([]RangeOrHole, error) {
	segs, err := r.planRead(offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]RangeOrHole, 0, len(segs))
	for _, seg := range segs {
		if seg.Chunk.IsHole() {
			out = append(out, RangeOrHole{Hole: true, Length: seg.Length})
			continue
		}
		segOffInChunk := offset + seg.FileOffset - seg.ChunkStart
		fut, err := r.source.Get(ctx, seg.Chunk.Block, int64(seg.Chunk.Offset)+segOffInChunk, seg.Length)
		if err != nil {
			return out, err
		}
		rng, err := fut.Wait()
		if err != nil {
			return out, err
		}
		out = append(out, RangeOrHole{Range: rng, Length: seg.Length})
	}
	return out, nil
}
