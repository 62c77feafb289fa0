package cache

import "sync/atomic"

// BlockRange is a reference-counted borrow of a contiguous slice of a
// cached block's data (spec.md §4.7, §9 "shared ownership with weak
// back-references"). The block itself is never explicitly pinned in
// memory by a BlockRange — Go's garbage collector keeps the *Block alive
// for as long as any BlockRange references it — but the cache's own
// eviction bookkeeping additionally tracks the refcount so a block whose
// ranges are still outstanding is never counted as evictable.
type BlockRange struct {
	block  *Block
	offset int64
	size   int64
	entry  *entry
}

func newBlockRange(e *entry, offset, size int64) *BlockRange {
	if e != nil {
		atomic.AddInt32(&e.refs, 1)
	}
	return &BlockRange{block: e.block, offset: offset, size: size, entry: e}
}

// Bytes returns the range's bytes. Valid as long as the BlockRange is
// reachable; the backing array never moves once the block's buffer is
// frozen.
func (r *BlockRange) Bytes() []byte {
	return r.block.Data()[r.offset : r.offset+r.size]
}

// Size returns the range's length in bytes.
func (r *BlockRange) Size() int64 { return r.size }

// Release drops this range's hold on its parent block's eviction
// accounting. Safe to call more than once; only the first call has an
// effect.
func (r *BlockRange) Release() {
	if r.entry == nil {
		return
	}
	e := r.entry
	r.entry = nil
	if atomic.AddInt32(&e.refs, -1) == 0 && e.notify != nil {
		e.notify()
	}
}
