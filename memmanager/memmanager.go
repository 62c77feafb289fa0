// Package memmanager implements credit-based admission: a fixed total
// budget of bytes that callers request a grant from before doing
// memory-heavy work, with priority ordering, an optional high-priority
// reserve, partial release, and per-tag accounting (spec.md §4.12).
package memmanager

import (
	"container/heap"
	"context"
	"sync"
)

// Grant is an outstanding credit allocation. Callers must call Release
// (or ReleasePartial) exactly once.
type Grant struct {
	mgr   *Manager
	tag   string
	bytes int64
}

// Bytes reports the grant's current size.
func (g *Grant) Bytes() int64 { return g.bytes }

// Release returns the whole grant to the pool.
func (g *Grant) Release() {
	g.mgr.release(g.tag, g.bytes)
	g.bytes = 0
}

// ReleasePartial shrinks a grant mid-flight, returning the difference
// to the pool immediately while keeping the rest held.
func (g *Grant) ReleasePartial(newSize int64) {
	if newSize < 0 || newSize > g.bytes {
		return
	}
	delta := g.bytes - newSize
	g.bytes = newSize
	if delta > 0 {
		g.mgr.release(g.tag, delta)
	}
}

type request struct {
	tag      string
	bytes    int64
	priority int // higher runs first
	highPrio bool
	ready    chan struct{}
	index    int
}

// requestHeap orders pending requests by priority (high first), then
// FIFO within a priority tier via insertion order captured in index.
type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].index < h[j].index
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Manager is a fixed-capacity byte budget with priority-ordered
// admission.
type Manager struct {
	mu            sync.Mutex
	capacity      int64
	used          int64
	highReserve   int64 // bytes reserved exclusively for high-priority requests
	pending       requestHeap
	nextIndex     int
	perTag        map[string]int64
}

// New builds a Manager with the given total capacity and an optional
// reserve that only requests marked high-priority may dip into.
func New(capacity, highPriorityReserve int64) *Manager {
	m := &Manager{
		capacity:    capacity,
		highReserve: highPriorityReserve,
		perTag:      make(map[string]int64),
	}
	heap.Init(&m.pending)
	return m
}

// Request blocks until bytes of credit are available for tag, honoring
// priority order among concurrently blocked requests and ctx
// cancellation.
func (m *Manager) Request(ctx context.Context, tag string, bytes int64, priority int, highPriority bool) (*Grant, error) {
	m.mu.Lock()
	if m.tryAdmitLocked(bytes, highPriority) {
		m.used += bytes
		m.perTag[tag] += bytes
		m.mu.Unlock()
		return &Grant{mgr: m, tag: tag, bytes: bytes}, nil
	}

	req := &request{tag: tag, bytes: bytes, priority: priority, highPrio: highPriority, ready: make(chan struct{}), index: m.nextIndex}
	m.nextIndex++
	heap.Push(&m.pending, req)
	m.mu.Unlock()

	select {
	case <-req.ready:
		// release() already charged these bytes to m.used/perTag at the
		// moment it admitted this request, so there's nothing left to do
		// here but hand back the grant.
		return &Grant{mgr: m, tag: tag, bytes: bytes}, nil
	case <-ctx.Done():
		m.mu.Lock()
		m.removePending(req)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// tryAdmitLocked reports whether bytes fits within capacity, respecting
// the high-priority reserve for non-high-priority requests. Caller
// holds m.mu.
func (m *Manager) tryAdmitLocked(bytes int64, highPriority bool) bool {
	available := m.capacity - m.used
	if !highPriority {
		available -= m.highReserve
	}
	return bytes <= available
}

func (m *Manager) removePending(target *request) {
	for i, r := range m.pending {
		if r == target {
			heap.Remove(&m.pending, i)
			return
		}
	}
}

// release returns bytes to the pool and wakes the next satisfiable
// pending request, per spec.md's "condition-variable wake of the next
// satisfiable request on release".
func (m *Manager) release(tag string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= bytes
	m.perTag[tag] -= bytes

	for m.pending.Len() > 0 {
		next := m.pending[0]
		if !m.tryAdmitLocked(next.bytes, next.highPrio) {
			break
		}
		heap.Pop(&m.pending)
		m.used += next.bytes
		m.perTag[next.tag] += next.bytes
		close(next.ready)
	}
}

// TagUsage reports bytes currently granted under tag.
func (m *Manager) TagUsage(tag string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perTag[tag]
}

// Used reports total bytes currently granted across all tags.
func (m *Manager) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
