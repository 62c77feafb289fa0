//go:build linux

package cache

import "golang.org/x/sys/unix"

// AnyPagesSwappedOut advises whether any of the block's resident pages
// have been pushed out to swap, via mincore(2), the same best-effort
// eviction signal original_source/src/reader/internal/cached_block.cpp
// derives from ::mincore().
func (b *Block) AnyPagesSwappedOut() bool {
	data := b.Data()
	if len(data) == 0 {
		return false
	}
	pageSize := unix.Getpagesize()
	vec := make([]byte, (len(data)+pageSize-1)/pageSize)
	if err := unix.Mincore(data, vec); err != nil {
		return false
	}
	for _, v := range vec {
		if v&1 == 0 {
			return true
		}
	}
	return false
}
