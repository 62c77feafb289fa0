//go:build linux

package inode

import (
	"os"

	"golang.org/x/sys/unix"
)

// osSeekData/osSeekHole mirror unix.SEEK_DATA/unix.SEEK_HOLE, used when
// extracting a file to a real filesystem and trying to preserve
// sparseness rather than materializing every hole as zero bytes.
const (
	osSeekData = unix.SEEK_DATA
	osSeekHole = unix.SEEK_HOLE
)

// OSSparseExtent reports the next data or hole boundary at or after off
// in an already-open destination file, using the kernel's own sparse
// file bookkeeping rather than this package's chunk-list view.
func OSSparseExtent(f *os.File, off int64, whence Whence) (int64, error) {
	w := osSeekData
	if whence == SeekHole {
		w = osSeekHole
	}
	return unix.Seek(int(f.Fd()), off, w)
}
