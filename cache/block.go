// Package cache implements the cached block and the concurrent block
// cache with asynchronous decompression (spec.md §4.6, §4.7). It plays
// the role KarpelesLab/squashfs's tableReader plays for SquashFS's
// metadata tables, generalized to a byte-budgeted LRU with a worker pool
// instead of decompressing synchronously on every table read.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhx/dwarfs-sub004/bytebuffer"
	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/image"
)

// Block owns a decompressor and a frozen buffer, exposing an incrementally
// growing decompressed prefix (spec.md §4.6).
type Block struct {
	section *image.Section

	mu           sync.Mutex
	decompressor codec.Decompressor
	buf          *bytebuffer.Buffer
	uncompSize   int

	rangeEnd int64 // atomically published prefix length

	lastAccess atomic.Int64 // unix nanos

	release bool // advise-release compressed source bytes on completion
}

// NewBlock creates a cached block for section, driven by decompressor.
// uncompSize is the decompressor's known uncompressed size.
func NewBlock(section *image.Section, decompressor codec.Decompressor, release bool) (*Block, error) {
	uncompSize, err := decompressor.UncompressedSize()
	if err != nil {
		return nil, fmt.Errorf("cache: uncompressed size: %w", err)
	}
	b := &Block{
		section:      section,
		decompressor: decompressor,
		buf:          bytebuffer.New(),
		uncompSize:   uncompSize,
		release:      release,
	}
	if err := decompressor.StartDecompression(b.buf); err != nil {
		return nil, fmt.Errorf("cache: start decompression: %w", err)
	}
	b.touchNow()
	return b, nil
}

// RangeEnd returns the current decompressed prefix length. Safe to call
// from any goroutine.
func (b *Block) RangeEnd() int64 {
	return atomic.LoadInt64(&b.rangeEnd)
}

// UncompressedSize returns the block's total decompressed size.
func (b *Block) UncompressedSize() int {
	return b.uncompSize
}

// Section returns the originating image section.
func (b *Block) Section() *image.Section { return b.section }

// DecompressUntil drives the decompressor until the decompressed prefix
// covers at least end bytes (or the whole block, if end >= size). Callers
// must coalesce concurrent waiters themselves (the block cache does this
// via per-block futures); DecompressUntil itself serializes on an
// internal mutex so only one goroutine decompresses a given block at a
// time (spec.md §5).
func (b *Block) DecompressUntil(end int64) error {
	if end > int64(b.uncompSize) {
		end = int64(b.uncompSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.RangeEnd() >= end {
		return nil
	}

	for b.RangeEnd() < end {
		if b.decompressor == nil {
			return fmt.Errorf("cache: no decompressor for completed block")
		}
		done, err := b.decompressor.DecompressFrame()
		if err != nil {
			return fmt.Errorf("cache: decompress block: %w", err)
		}
		atomic.StoreInt64(&b.rangeEnd, int64(b.buf.Len()))
		if done {
			b.decompressor = nil
			break
		}
	}
	return nil
}

// Data returns a pointer to the decompressed prefix. The slice is stable
// for the lifetime of the block: the backing buffer is frozen at
// creation time and never reallocated.
func (b *Block) Data() []byte {
	return b.buf.Bytes()
}

// Touch records the current time for LRU bookkeeping.
func (b *Block) Touch() { b.touchNow() }

func (b *Block) touchNow() {
	b.lastAccess.Store(time.Now().UnixNano())
}

// LastUsedBefore reports whether the block's last access precedes tp.
func (b *Block) LastUsedBefore(tp time.Time) bool {
	return b.lastAccess.Load() < tp.UnixNano()
}
