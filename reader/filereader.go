// Package reader provides a bounded-memory streaming iterator over an
// inode's byte ranges. Named reader (not "filereader") to mirror the
// DwarFS "file reader" terminology while staying out of io.Reader's
// way; FileReader deliberately does not implement io.Reader since it
// yields cache.BlockRange values instead of copying into a caller
// buffer.
package reader

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/mhx/dwarfs-sub004/inode"
)

// FileReader iterates an inode's [0, size) range in bounded-memory
// leases: each Next() call admits at most maxBytes of outstanding
// decompressed data via a counting semaphore, issues cache gets to
// cover it, and yields ranges in file order (spec.md §4.9).
type FileReader struct {
	ir       *inode.Reader
	sem      *semaphore.Weighted
	maxBytes int64

	pos   int64
	total int64
}

// NewFileReader builds a FileReader over ir, sharing sem as the
// caller-provided counting semaphore bounding total outstanding
// decompressed bytes across however many readers share it.
func NewFileReader(ir *inode.Reader, sem *semaphore.Weighted, maxBytes int64) *FileReader {
	return &FileReader{ir: ir, sem: sem, maxBytes: maxBytes, total: ir.Size()}
}

// Done reports whether the iterator has reached EOF.
func (f *FileReader) Done() bool { return f.pos >= f.total }

// Batch is one lease's worth of ranges. The semaphore permit backing it
// stays held until Release is called, so the caller controls how long
// the decompressed bytes count against max_bytes — not just for the
// duration of the Next() call that produced them.
type Batch struct {
	Ranges []inode.RangeOrHole

	sem   *semaphore.Weighted
	lease int64
}

// Release drops every BlockRange in the batch and frees its semaphore
// lease. Safe to call exactly once per batch.
func (b *Batch) Release() {
	for _, r := range b.Ranges {
		if r.Range != nil {
			r.Range.Release()
		}
	}
	b.sem.Release(b.lease)
}

// Next admits one lease of up to maxBytes and returns the ranges (and
// holes) covering it, advancing the iterator. Returns nil at EOF. The
// returned Batch must be Released once the caller is done with its
// data, which is what actually frees the lease (spec.md §4.9: "never
// holds more than max_bytes of decompressed data alive").
func (f *FileReader) Next(ctx context.Context) (*Batch, error) {
	if f.Done() {
		return nil, nil
	}
	remaining := f.total - f.pos
	lease := f.maxBytes
	if remaining < lease {
		lease = remaining
	}
	if lease <= 0 {
		return nil, fmt.Errorf("reader: non-positive lease size")
	}

	if err := f.sem.Acquire(ctx, lease); err != nil {
		return nil, err
	}

	ranges, err := f.ir.ReadV(ctx, f.pos, lease)
	if err != nil {
		f.sem.Release(lease)
		return nil, err
	}
	f.pos += lease
	return &Batch{Ranges: ranges, sem: f.sem, lease: lease}, nil
}
