// Package dwarfserr holds the sentinel errors shared between the root
// dwarfs package and the component packages (cache, inode) it composes.
// Those components need to return the same error identities the facade
// promises via errors.Is, but importing the root package directly would
// cycle back through it; this leaf package breaks that cycle, and the
// root package re-exports these values under its own names.
package dwarfserr

import "errors"

var (
	// ErrIntegrityCheck is returned when a section's checksum does not
	// match its payload.
	ErrIntegrityCheck = errors.New("dwarfs: integrity check failed")

	// ErrUnknownCompression is returned when a section names a
	// compression identifier with no registered decoder.
	ErrUnknownCompression = errors.New("dwarfs: unknown compression algorithm")

	// ErrIoError wraps failures from the underlying storage (file view).
	ErrIoError = errors.New("dwarfs: I/O error")

	// ErrDecompressionError wraps failures surfaced by a codec while
	// decompressing a block.
	ErrDecompressionError = errors.New("dwarfs: decompression error")

	// ErrCapacityExceeded is returned when a request is larger than the
	// block cache's configured capacity and can never be admitted.
	ErrCapacityExceeded = errors.New("dwarfs: requested size exceeds cache capacity")

	// ErrNoSuchDeviceOrAddress is returned by Seek for an offset that is
	// negative or past EOF (or at EOF for a data seek), and for a data
	// seek that finds no data at or after the offset (matches Linux
	// SEEK_HOLE/SEEK_DATA semantics, ENXIO).
	ErrNoSuchDeviceOrAddress = errors.New("dwarfs: no such device or address")
)
