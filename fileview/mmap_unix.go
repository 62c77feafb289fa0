//go:build !windows

package fileview

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mmap is a View backed by a full mmap of the image file, grounded on
// original_source/src/internal/mmap_file_view.cpp. ReleaseUntil maps onto
// madvise(MADV_DONTNEED) the same way cached_block's try_release() advises
// the kernel once a block has been fully decompressed.
type Mmap struct {
	f    *os.File
	data []byte
}

var _ View = (*Mmap)(nil)

// NewMmap maps f's full content read-only.
func NewMmap(f *os.File) (*Mmap, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &Mmap{f: f, data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("fileview: mmap failed: %w", err)
	}
	return &Mmap{f: f, data: data}, nil
}

// Close unmaps the backing memory.
func (v *Mmap) Close() error {
	if v.data == nil {
		return nil
	}
	return unix.Munmap(v.data)
}

func (v *Mmap) Size() int64 { return int64(len(v.data)) }

func (v *Mmap) CopyBytes(dest []byte, offset, size int64) error {
	if err := checkRange(v.Size(), offset, size); err != nil {
		return err
	}
	copy(dest, v.data[offset:offset+size])
	return nil
}

func (v *Mmap) SegmentAt(offset, size int64) (*Segment, error) {
	if err := checkRange(v.Size(), offset, size); err != nil {
		return nil, err
	}
	return NewSegment(v.data[offset:offset+size], nil), nil
}

func (v *Mmap) Extents(offset, size int64) ([]Extent, error) {
	if err := checkRange(v.Size(), offset, size); err != nil {
		return nil, err
	}
	return []Extent{{Offset: offset, Size: size, Hole: false}}, nil
}

func (v *Mmap) ReleaseUntil(offset int64) {
	if v.data == nil || offset <= 0 {
		return
	}
	if offset > int64(len(v.data)) {
		offset = int64(len(v.data))
	}
	// Advise the kernel that the leading pages are no longer needed; best
	// effort, mirrors cached_block's madvise(DONTNEED) on release.
	_ = unix.Madvise(v.data[:offset], unix.MADV_DONTNEED)
}
