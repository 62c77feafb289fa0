// Package fileview presents a random-access byte range over an image file
// without dictating whether the backing is a full mmap, a partial map, or
// positional reads (spec.md §4.1). It plays the role
// KarpelesLab/squashfs's io.ReaderAt-based Superblock.fs plays, generalized
// to expose extent/hole awareness and reference-counted segments.
package fileview

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ErrOutOfRange is returned when a requested window falls outside the
// view's size.
var ErrOutOfRange = errors.New("fileview: out of range")

// Extent describes one contiguous data or hole run inside a range, used
// only when the backing offers sparse-file awareness.
type Extent struct {
	Offset int64
	Size   int64
	Hole   bool
}

// View is a random-access byte range over an image file.
type View interface {
	// Size returns the total number of addressable bytes.
	Size() int64

	// CopyBytes copies size bytes starting at offset into dest (which
	// must have length >= size).
	CopyBytes(dest []byte, offset, size int64) error

	// SegmentAt returns a reference-counted window over [offset,
	// offset+size). The window remains valid until Release is called,
	// even if other overlapping segments are created or released in the
	// meantime: overlapping windows may alias, releasing one must never
	// invalidate another.
	SegmentAt(offset, size int64) (*Segment, error)

	// Extents reports the data/hole runs overlapping [offset,
	// offset+size). Implementations with no sparse-file awareness return
	// a single non-hole extent covering the whole range.
	Extents(offset, size int64) ([]Extent, error)

	// ReleaseUntil is an advisory hint that bytes before offset are no
	// longer needed and may be evicted from any backing page cache.
	ReleaseUntil(offset int64)
}

// Segment is a reference-counted, immutable window into a View's bytes.
type Segment struct {
	data     []byte
	refcnt   int32
	released int32
	onFree   func()
}

// NewSegment wraps data as a segment with an optional release callback.
func NewSegment(data []byte, onFree func()) *Segment {
	return &Segment{data: data, refcnt: 1, onFree: onFree}
}

// Bytes returns the segment's bytes. Valid until Release drops the last
// reference.
func (s *Segment) Bytes() []byte { return s.data }

// Retain increments the reference count and returns the segment, so
// callers can hand out additional aliasing holds.
func (s *Segment) Retain() *Segment {
	atomic.AddInt32(&s.refcnt, 1)
	return s
}

// Release drops a reference; once the count reaches zero the release
// callback (if any) fires exactly once.
func (s *Segment) Release() {
	if atomic.AddInt32(&s.refcnt, -1) == 0 {
		if atomic.CompareAndSwapInt32(&s.released, 0, 1) && s.onFree != nil {
			s.onFree()
		}
	}
}

func checkRange(size, offset, length int64) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("%w: offset=%d length=%d size=%d", ErrOutOfRange, offset, length, size)
	}
	return nil
}

// readFull is a small helper shared by View implementations backed by an
// io.ReaderAt, the way the teacher reads fixed-size headers with ReadAt
// directly rather than through bufio.
func readFull(r io.ReaderAt, dest []byte, offset int64) error {
	_, err := io.ReadFull(io.NewSectionReader(r, offset, int64(len(dest))), dest)
	return err
}
