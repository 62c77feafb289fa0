package inode

import (
	"fmt"

	"github.com/mhx/dwarfs-sub004/internal/dwarfserr"
)

// Whence selects SEEK_DATA/SEEK_HOLE semantics for Reader.Seek, the
// sparse-file-aware counterpart to lseek's SEEK_SET/SEEK_CUR/SEEK_END.
type Whence int

const (
	SeekData Whence = iota
	SeekHole
)

// Seek walks the chunk list from off looking for the next data (or
// hole) boundary, per spec.md's seek(inode, off, whence) operation.
// Returns ErrNoSuchDeviceOrAddress if off is negative or past EOF, or at
// EOF for SeekData (SeekHole at EOF returns EOF, the virtual hole there),
// and when SeekData finds no data at or after off, matching lseek(2)'s
// ENXIO for SEEK_DATA/SEEK_HOLE.
func (r *Reader) Seek(off int64, whence Whence) (int64, error) {
	total := r.Size()
	if off < 0 || off >= total {
		if off == total && whence == SeekHole {
			// A virtual hole at EOF, matching lseek(2).
			return total, nil
		}
		return 0, fmt.Errorf("inode: seek offset %d: %w", off, dwarfserr.ErrNoSuchDeviceOrAddress)
	}

	idx, chunkStart := r.chunkAt(off)
	for idx < len(r.chunks) {
		c := r.chunks[idx]
		isHole := c.IsHole()
		chunkEnd := r.offsets[idx+1]
		want := whence == SeekHole
		if isHole == want {
			if chunkStart > off {
				return chunkStart, nil
			}
			return off, nil
		}
		off = chunkEnd
		chunkStart = chunkEnd
		idx++
	}
	if whence == SeekHole {
		return total, nil
	}
	return 0, fmt.Errorf("inode: no data at or after offset: %w", dwarfserr.ErrNoSuchDeviceOrAddress)
}
