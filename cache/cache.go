package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/fileview"
	"github.com/mhx/dwarfs-sub004/image"
	"github.com/mhx/dwarfs-sub004/internal/dwarfserr"
	"github.com/mhx/dwarfs-sub004/workergroup"
)

// state is Pending or Ready (spec.md §4.7). Absent has no explicit value:
// it is simply the lack of an entry in the map, which is also what an
// evicted block becomes.
type state int

const (
	statePending state = iota
	stateReady
)

// jobAdder is the subset of workergroup.Group/AdaptiveGroup the cache
// needs, so tests can substitute a synchronous stand-in.
type jobAdder interface {
	Add(ctx context.Context, job workergroup.Job) error
}

// Source resolves a block id to its backing image section, the way the
// filesystem facade maps block numbers onto the parsed section list.
type Source interface {
	BlockSection(blockID uint32) (*image.Section, error)
}

type waiter struct {
	end    int64
	future *Future[*BlockRange]
	offset int64
	size   int64
}

type entry struct {
	id       uint32
	block    *Block
	state    state
	waiters  []*waiter
	refs     int32
	elem     *list.Element
	failed   error
	reserved int64 // bytes charged against currentBytes before the real size was known
	notify   func()
}

// Cache is the fixed-size, byte-budgeted block cache plus decompression
// worker pool (spec.md §4.7).
type Cache struct {
	view     fileview.View
	source   Source
	registry *codec.Registry
	workers  jobAdder
	logger   *slog.Logger

	disableIntegrity bool
	mmRelease        bool
	maxBytes         uint64

	mu           sync.Mutex
	cond         *sync.Cond
	entries      map[uint32]*entry
	lru          *list.List // front = most recently used
	currentBytes uint64
}

// Config bundles a Cache's construction-time dependencies.
type Config struct {
	View                  fileview.View
	Source                Source
	Registry              *codec.Registry
	Workers               jobAdder
	Logger                *slog.Logger
	MaxBytes              uint64
	DisableIntegrityCheck bool
	MMRelease             bool
}

// New builds a Cache from cfg.
func New(cfg Config) *Cache {
	c := &Cache{
		view:             cfg.View,
		source:           cfg.Source,
		registry:         cfg.Registry,
		workers:          cfg.Workers,
		logger:           cfg.Logger,
		disableIntegrity: cfg.DisableIntegrityCheck,
		mmRelease:        cfg.MMRelease,
		maxBytes:         cfg.MaxBytes,
		entries:          make(map[uint32]*entry),
		lru:              list.New(),
	}
	c.cond = sync.NewCond(&c.mu)
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Get requests [offsetInBlock, offsetInBlock+size) of blockID, returning a
// future that resolves to a BlockRange once the data is available
// (spec.md §4.7's public contract).
func (c *Cache) Get(ctx context.Context, blockID uint32, offsetInBlock, size int64) (*Future[*BlockRange], error) {
	fut := NewFuture[*BlockRange]()

	c.mu.Lock()
	e, ok := c.entries[blockID]
	if ok {
		c.promoteLocked(e)
		if e.failed != nil {
			c.mu.Unlock()
			fut.Reject(e.failed)
			return fut, nil
		}
		if e.state == stateReady || (e.block != nil && e.block.RangeEnd() >= offsetInBlock+size) {
			block := e.block
			rng := newBlockRange(e, offsetInBlock, size)
			c.mu.Unlock()
			block.Touch()
			fut.Resolve(rng)
			return fut, nil
		}
		// Pending and not yet covering this request: attach a
		// continuation; the in-flight job resolves it once the
		// decompressed prefix is long enough (FIFO per spec.md §4.7).
		e.waiters = append(e.waiters, &waiter{end: offsetInBlock + size, future: fut, offset: offsetInBlock, size: size})
		c.mu.Unlock()
		return fut, nil
	}

	// Absent: admit, creating room in the byte budget first.
	sec, err := c.source.BlockSection(blockID)
	if err != nil {
		c.mu.Unlock()
		fut.Reject(fmt.Errorf("cache: resolve block %d: %w", blockID, err))
		return fut, nil
	}

	reserved := estimatedUncompressedSize(sec)
	if err := c.admitLocked(ctx, reserved); err != nil {
		c.mu.Unlock()
		fut.Reject(err)
		return fut, nil
	}
	c.currentBytes += uint64(reserved)

	e = &entry{id: blockID, state: statePending, reserved: reserved}
	e.notify = func() { c.cond.Broadcast() }
	e.waiters = append(e.waiters, &waiter{end: offsetInBlock + size, future: fut, offset: offsetInBlock, size: size})
	e.elem = c.lru.PushFront(e)
	c.entries[blockID] = e
	c.mu.Unlock()

	if err := c.workers.Add(ctx, func() { c.decompressEntry(sec, e) }); err != nil {
		c.mu.Lock()
		c.removeEntryLocked(e)
		c.mu.Unlock()
		fut.Reject(err)
	}
	return fut, nil
}

// estimatedUncompressedSize guesses a block's decompressed size before
// decompression has started, for admission accounting purposes. DwarFS
// blocks are rarely compressed by more than 4x in practice, so the
// compressed length scaled up is a conservative reservation; it is
// reconciled against the real size once decompression begins.
func estimatedUncompressedSize(sec *image.Section) int64 {
	return int64(sec.Header().Length) * 4
}

// admitLocked evicts LRU-eligible entries until there is room for an
// estimated byte budget of `need`, blocking on c.cond when nothing is
// evictable and the cache is over budget (spec.md §4.7 step 3). Must be
// called with c.mu held.
func (c *Cache) admitLocked(ctx context.Context, need int64) error {
	if c.maxBytes == 0 {
		return nil // unbounded
	}
	if uint64(need) > c.maxBytes {
		return dwarfserr.ErrCapacityExceeded
	}
	for c.currentBytes+uint64(need) > c.maxBytes {
		if !c.evictOneLocked() {
			// Nothing evictable right now; wait for a release or
			// completion, honoring context cancellation.
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					c.cond.Broadcast()
				case <-done:
				}
			}()
			c.cond.Wait()
			close(done)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// evictOneLocked drops the least-recently-used entry whose ranges have
// all been released, returning true if one was evicted.
func (c *Cache) evictOneLocked() bool {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.state != stateReady {
			continue
		}
		if atomic.LoadInt32(&e.refs) != 0 {
			continue
		}
		c.lru.Remove(el)
		delete(c.entries, e.id)
		c.currentBytes -= uint64(e.reserved)
		return true
	}
	return false
}

func (c *Cache) promoteLocked(e *entry) {
	c.lru.MoveToFront(e.elem)
}

func (c *Cache) removeEntryLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
	}
	delete(c.entries, e.id)
}

// decompressEntry drives a newly-admitted block's decompression, waking
// waiters as soon as their requested range is covered, and marks the
// entry Ready on completion.
func (c *Cache) decompressEntry(sec *image.Section, e *entry) {
	compressed, err := sec.Data(c.view)
	if err != nil {
		c.failEntry(e, fmt.Errorf("%w: %v", dwarfserr.ErrIoError, err))
		return
	}

	if !c.disableIntegrity {
		ok, err := sec.CheckFast(c.view)
		if err != nil || !ok {
			c.failEntry(e, dwarfserr.ErrIntegrityCheck)
			return
		}
	}

	dec, err := c.registry.New(sec.Compression(), compressed)
	if err != nil {
		c.failEntry(e, fmt.Errorf("%w: %v", dwarfserr.ErrUnknownCompression, err))
		return
	}

	block, err := NewBlock(sec, dec, c.mmRelease)
	if err != nil {
		c.failEntry(e, fmt.Errorf("%w: %v", dwarfserr.ErrDecompressionError, err))
		return
	}

	c.mu.Lock()
	e.block = block
	actual := int64(block.UncompressedSize())
	if actual >= e.reserved {
		c.currentBytes += uint64(actual - e.reserved)
	} else {
		c.currentBytes -= uint64(e.reserved - actual)
	}
	e.reserved = actual
	c.mu.Unlock()

	const frameStep = 256 << 10
	target := int64(block.UncompressedSize())
	for next := int64(frameStep); ; next += frameStep {
		if next > target {
			next = target
		}
		if err := block.DecompressUntil(next); err != nil {
			c.failEntry(e, fmt.Errorf("%w: %v", dwarfserr.ErrDecompressionError, err))
			return
		}
		c.wakeSatisfiedWaiters(e, block.RangeEnd())
		if next >= target {
			break
		}
	}

	if c.mmRelease {
		// The compressed bytes were copied out by sec.Data above.
		c.view.ReleaseUntil(sec.End())
	}

	c.mu.Lock()
	e.state = stateReady
	remaining := e.waiters
	e.waiters = nil
	c.cond.Broadcast()
	c.mu.Unlock()
	for _, w := range remaining {
		rng := newBlockRange(e, w.offset, w.size)
		w.future.Resolve(rng)
	}
}

func (c *Cache) wakeSatisfiedWaiters(e *entry, rangeEnd int64) {
	c.mu.Lock()
	var remaining []*waiter
	var ready []*waiter
	for _, w := range e.waiters {
		if w.end <= rangeEnd {
			ready = append(ready, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	e.waiters = remaining
	c.mu.Unlock()

	for _, w := range ready {
		rng := newBlockRange(e, w.offset, w.size)
		w.future.Resolve(rng)
	}
}

func (c *Cache) failEntry(e *entry, err error) {
	c.mu.Lock()
	e.failed = err
	waiters := e.waiters
	e.waiters = nil
	c.currentBytes -= uint64(e.reserved)
	e.reserved = 0
	c.removeEntryLocked(e)
	c.cond.Broadcast()
	c.mu.Unlock()
	for _, w := range waiters {
		w.future.Reject(err)
	}
}

// Stats reports the cache's current resident byte count, for observers
// and the "Bounded memory" testable property (spec.md §8).
func (c *Cache) Stats() (currentBytes, maxBytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBytes, c.maxBytes
}
