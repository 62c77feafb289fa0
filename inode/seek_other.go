//go:build !linux

package inode

import (
	"fmt"
	"os"
)

// OSSparseExtent has no portable implementation outside Linux's
// SEEK_DATA/SEEK_HOLE extension; callers fall back to treating the
// whole file as data.
func OSSparseExtent(f *os.File, off int64, whence Whence) (int64, error) {
	return 0, fmt.Errorf("inode: OS-level sparse seek is not supported on this platform")
}
