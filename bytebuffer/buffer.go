// Package bytebuffer implements the freeze-after-fill append buffer used
// as a decompression target (spec.md §4.5). It is the one place a pointer
// is allowed to outlive subsequent mutations: once frozen, the backing
// array never moves, so a decompressor can hand out stable slices into
// its own output while still filling it incrementally.
package bytebuffer

import "errors"

// ErrFrozen is returned by any mutator other than a capacity-bounded
// Resize once the buffer has been frozen.
var ErrFrozen = errors.New("bytebuffer: buffer is frozen")

// Buffer is an append-only byte buffer with two phases: mutable (reserve,
// resize, append, clear, shrink_to_fit all legal) and frozen (only Resize
// up to the reserved capacity is legal).
type Buffer struct {
	data   []byte
	frozen bool
}

// New returns an empty, mutable buffer.
func New() *Buffer {
	return &Buffer{}
}

// Reserve grows the backing capacity to at least n bytes without changing
// the logical length. Legal only while mutable.
func (b *Buffer) Reserve(n int) error {
	if b.frozen {
		return ErrFrozen
	}
	if cap(b.data) >= n {
		return nil
	}
	grown := make([]byte, len(b.data), n)
	copy(grown, b.data)
	b.data = grown
	return nil
}

// Resize sets the logical length to n. While mutable this may grow beyond
// the current capacity (reallocating); once frozen it is legal only up to
// the reserved capacity — the backing array must never move after Freeze.
func (b *Buffer) Resize(n int) error {
	if !b.frozen {
		if n <= cap(b.data) {
			b.data = b.data[:n]
			return nil
		}
		grown := make([]byte, n)
		copy(grown, b.data)
		b.data = grown
		return nil
	}
	if n > cap(b.data) {
		return ErrFrozen
	}
	b.data = b.data[:n]
	return nil
}

// Append adds p to the end of the buffer, growing as needed. Legal only
// while mutable.
func (b *Buffer) Append(p []byte) error {
	if b.frozen {
		return ErrFrozen
	}
	b.data = append(b.data, p...)
	return nil
}

// Clear truncates the buffer to zero length without releasing capacity.
// Legal only while mutable.
func (b *Buffer) Clear() error {
	if b.frozen {
		return ErrFrozen
	}
	b.data = b.data[:0]
	return nil
}

// ShrinkToFit releases unused capacity. Legal only while mutable.
func (b *Buffer) ShrinkToFit() error {
	if b.frozen {
		return ErrFrozen
	}
	shrunk := make([]byte, len(b.data))
	copy(shrunk, b.data)
	b.data = shrunk
	return nil
}

// FreezeLocation pins the backing array: after this call Resize is legal
// only up to the reserved capacity, and every other mutator fails with
// ErrFrozen. Callers should Reserve the decompressor's known uncompressed
// size before calling FreezeLocation so the buffer never needs to regrow.
func (b *Buffer) FreezeLocation() {
	b.frozen = true
}

// Frozen reports whether FreezeLocation has been called.
func (b *Buffer) Frozen() bool { return b.frozen }

// Len returns the current logical length.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the current reserved capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the buffer's current logical content. Once frozen, the
// returned slice's backing array is stable for the buffer's lifetime;
// while mutable, a later Reserve/Resize/Append may reallocate and
// invalidate any slice obtained before that call.
func (b *Buffer) Bytes() []byte { return b.data }
