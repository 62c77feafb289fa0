// Package dwarfs implements the DwarFS read-path core: image parsing, the
// block cache, frozen metadata, and the inode I/O engine.
package dwarfs

import (
	"errors"

	"github.com/mhx/dwarfs-sub004/bytebuffer"
	"github.com/mhx/dwarfs-sub004/image"
	"github.com/mhx/dwarfs-sub004/internal/dwarfserr"
)

// Package-specific error variables, usable with errors.Is(). These mirror
// the error taxonomy a DwarFS reader must surface; component packages
// return these directly or wrap them with additional context via %w.
//
// ErrIntegrityCheck, ErrUnknownCompression, ErrIoError,
// ErrDecompressionError, ErrCapacityExceeded, and ErrNoSuchDeviceOrAddress
// are declared in internal/dwarfserr and re-exported here under the same
// names: cache and inode need to return these same error identities
// without importing this root package back (which would cycle), so
// internal/dwarfserr is the one place both sides import from.
// ErrBadMagic, ErrUnsupportedVersion, ErrTruncatedImage and
// ErrIndexCorrupt are the image package's values, and ErrFrozenBuffer is
// bytebuffer's, re-exported the same way.
//
// ErrUnknownSectionType, ErrOutOfRange, ErrNotADirectory,
// ErrNotARegularFile, ErrPermissionDenied, ErrCancelled and ErrNotExist
// name the remaining taxonomy entries; no function in this module returns
// or wraps them.
var (
	// ErrBadMagic is returned when the image does not start with (or
	// contain) the "DWARFS" magic.
	ErrBadMagic = image.ErrBadMagic

	// ErrUnsupportedVersion is returned when the major version is not
	// supported, or the minor version is newer than this reader knows.
	ErrUnsupportedVersion = image.ErrUnsupportedVersion

	// ErrTruncatedImage is returned when a read past the end of the image
	// would be required to parse a header or section.
	ErrTruncatedImage = image.ErrTruncated

	// ErrIndexCorrupt is returned when a section referenced by the section
	// index does not match the index's own record of its type.
	ErrIndexCorrupt = image.ErrIndexCorrupt

	// ErrIntegrityCheck is returned when a section's checksum does not
	// match its payload.
	ErrIntegrityCheck = dwarfserr.ErrIntegrityCheck

	// ErrUnknownCompression is returned when a section names a
	// compression identifier with no registered decoder.
	ErrUnknownCompression = dwarfserr.ErrUnknownCompression

	// ErrUnknownSectionType marks a section type the core does not
	// recognize. It is recoverable: callers may skip the section.
	ErrUnknownSectionType = errors.New("dwarfs: unknown section type")

	// ErrOutOfRange names a read past EOF, or a data-seek past EOF.
	ErrOutOfRange = errors.New("dwarfs: out of range")

	// ErrNoSuchDeviceOrAddress is returned by Seek for an offset that is
	// negative or past EOF (or at EOF for a data seek), and for a data
	// seek that finds no data at or after the offset (matches Linux
	// SEEK_HOLE/SEEK_DATA semantics, ENXIO).
	ErrNoSuchDeviceOrAddress = dwarfserr.ErrNoSuchDeviceOrAddress

	// ErrNotADirectory names a directory-only operation attempted on a
	// non-directory inode.
	ErrNotADirectory = errors.New("dwarfs: not a directory")

	// ErrNotARegularFile names an operation that needs a regular file
	// attempted on a different inode kind.
	ErrNotARegularFile = errors.New("dwarfs: not a regular file")

	// ErrPermissionDenied names an access check whose requested mode is
	// not permitted.
	ErrPermissionDenied = errors.New("dwarfs: permission denied")

	// ErrIoError wraps failures from the underlying storage (file view).
	ErrIoError = dwarfserr.ErrIoError

	// ErrDecompressionError wraps failures surfaced by a codec while
	// decompressing a block.
	ErrDecompressionError = dwarfserr.ErrDecompressionError

	// ErrCapacityExceeded is returned when a request is larger than the
	// block cache's configured capacity and can never be admitted.
	ErrCapacityExceeded = dwarfserr.ErrCapacityExceeded

	// ErrCancelled names a future dropped before the underlying job
	// completed.
	ErrCancelled = errors.New("dwarfs: operation cancelled")

	// ErrFrozenBuffer is returned by bytebuffer.Buffer mutators other
	// than a capacity-bounded resize, once the buffer has been frozen.
	ErrFrozenBuffer = bytebuffer.ErrFrozen

	// ErrNotExist mirrors fs.ErrNotExist for a path that fails to
	// resolve; Find reports such a path with the metadata package's own
	// error instead.
	ErrNotExist = errors.New("dwarfs: no such file or directory")
)
