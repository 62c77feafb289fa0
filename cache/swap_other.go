//go:build !linux

package cache

// AnyPagesSwappedOut is a best-effort eviction hint; unsupported
// platforms (and the portable build) always report false, matching the
// original's any_pages_swapped_out(), which is itself a no-op outside
// Linux/FreeBSD.
func (b *Block) AnyPagesSwappedOut() bool {
	return false
}
