// Package inode translates a file's chunk list into read/readv/seek
// operations over cached blocks, keeping an O(log(n/K)) index from file
// offset to chunk number via a sparse offset cache instead of a linear
// scan of every chunk on every access.
package inode

import "sync"

// OffsetCache keeps a sparse (every chunkIndexInterval chunks) mapping
// from file offset to chunk index per inode, amortizing the cost of
// locating a chunk for files with many chunks. It mirrors
// basic_offset_cache from original_source's reader internals, minus the
// bounded-size eviction (Go's GC reclaims per-inode entries once a
// Reader is no longer referenced, so there's no separate capacity
// policy to enforce).
type OffsetCache struct {
	chunkIndexInterval int

	mu      sync.Mutex
	perFile map[uint32]*chunkOffsets
}

// NewOffsetCache builds a cache keyed by inode number, indexing every
// chunkIndexInterval-th chunk boundary.
func NewOffsetCache(chunkIndexInterval int) *OffsetCache {
	if chunkIndexInterval < 1 {
		chunkIndexInterval = 256
	}
	return &OffsetCache{
		chunkIndexInterval: chunkIndexInterval,
		perFile:            make(map[uint32]*chunkOffsets),
	}
}

// chunkOffsets holds the sparse offset table for one inode plus a
// last-access hint that makes sequential reads O(1).
type chunkOffsets struct {
	mu              sync.Mutex
	offsets         []int64 // offsets[i] = file offset at chunk (i+1)*interval
	lastChunkIndex  int
	lastFileOffset  int64
	lastChunkSize   int64
}

func (o *OffsetCache) forInode(ino uint32) *chunkOffsets {
	o.mu.Lock()
	defer o.mu.Unlock()
	co, ok := o.perFile[ino]
	if !ok {
		co = &chunkOffsets{}
		o.perFile[ino] = co
	}
	return co
}

// Find returns the best known (chunkIndex, fileOffset) starting point
// for locating the chunk containing offset, falling back to (0, 0) when
// nothing useful is cached yet.
func (o *OffsetCache) Find(ino uint32, offset int64) (chunkIndex int, fileOffset int64) {
	co := o.forInode(ino)
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.lastFileOffset <= offset && offset <= co.lastFileOffset+co.lastChunkSize {
		return co.lastChunkIndex, co.lastFileOffset
	}

	if n := len(co.offsets); n > 0 {
		// offsets is sorted ascending; find the last entry <= offset.
		lo, hi := 0, n
		for lo < hi {
			mid := (lo + hi) / 2
			if co.offsets[mid] <= offset {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			return o.chunkIndexInterval * lo, co.offsets[lo-1]
		}
	}
	return 0, 0
}

// Update records that chunkIndex begins at fileOffset with the given
// chunkSize, and, when chunkIndex lands on an interval boundary, grows
// the sparse table so future Find calls can start closer to it.
func (o *OffsetCache) Update(ino uint32, chunkIndex int, fileOffset, chunkSize int64) {
	co := o.forInode(ino)
	co.mu.Lock()
	defer co.mu.Unlock()

	co.lastChunkIndex = chunkIndex
	co.lastFileOffset = fileOffset
	co.lastChunkSize = chunkSize

	if chunkIndex < o.chunkIndexInterval || chunkIndex%o.chunkIndexInterval != 0 {
		return
	}
	slot := chunkIndex/o.chunkIndexInterval - 1
	if slot == len(co.offsets) {
		co.offsets = append(co.offsets, fileOffset)
	}
}
