package fileview

import (
	"fmt"
	"io"
)

// ReaderAt is a View backed by positional reads against an io.ReaderAt,
// the same backing KarpelesLab/squashfs uses for its Superblock.fs field.
// It offers no sparse-file awareness: Extents always reports one data
// extent covering the requested range.
type ReaderAt struct {
	r    io.ReaderAt
	size int64
}

var _ View = (*ReaderAt)(nil)

// NewReaderAt wraps r, whose content is exactly size bytes long.
func NewReaderAt(r io.ReaderAt, size int64) *ReaderAt {
	return &ReaderAt{r: r, size: size}
}

func (v *ReaderAt) Size() int64 { return v.size }

func (v *ReaderAt) CopyBytes(dest []byte, offset, size int64) error {
	if err := checkRange(v.size, offset, size); err != nil {
		return err
	}
	if int64(len(dest)) < size {
		return fmt.Errorf("fileview: destination too small: have %d need %d", len(dest), size)
	}
	_, err := v.r.ReadAt(dest[:size], offset)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (v *ReaderAt) SegmentAt(offset, size int64) (*Segment, error) {
	if err := checkRange(v.size, offset, size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := v.CopyBytes(buf, offset, size); err != nil {
		return nil, err
	}
	return NewSegment(buf, nil), nil
}

func (v *ReaderAt) Extents(offset, size int64) ([]Extent, error) {
	if err := checkRange(v.size, offset, size); err != nil {
		return nil, err
	}
	return []Extent{{Offset: offset, Size: size, Hole: false}}, nil
}

func (v *ReaderAt) ReleaseUntil(offset int64) {
	// no backing page cache to advise; no-op.
}
