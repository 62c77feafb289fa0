// Package metadata decodes the frozen directory tree, inode table, and
// chunk lists stored in a MetadataV2 section and exposes them as the
// read path's in-memory view of "what files exist and where their
// bytes live."
//
// Upstream DwarFS freezes this structure with Apache Thrift's frozen
// layout so the metadata section can be addressed and traversed without
// a parsing pass. Reproducing that exact bit-packed layout requires the
// generated thrift schema, which isn't part of this module's dependency
// surface, so this package instead decodes a plain little-endian binary
// encoding of the same logical structure (arrays of fixed-width
// records, u32-prefixed variable tables). The schema is internal to
// this module: nothing outside the read path needs to parse it, and
// every operation the tree and inode table support (path lookup,
// directory listing, attribute retrieval, chunk resolution) behaves
// identically regardless of the wire representation underneath.
package metadata

// Chunk is one block-resident segment of a regular file's content
// (spec.md's chunk triple). ExtendedLength is populated only for holes
// whose length doesn't fit in Size's low 31 bits (Offset ==
// ExtendedHoleOffset); it has no on-disk representation of its own.
type Chunk struct {
	Block          uint32
	Offset         uint32
	Size           uint32
	ExtendedLength uint64
}

// HoleSizeBit marks a chunk whose Size encodes a sparse hole rather
// than real block-resident bytes, per the reserved high bit.
const HoleSizeBit = uint32(1) << 31

// ExtendedHoleOffset is the sentinel Offset value signaling that Size's
// low bits are an index into an extended-length hole table rather than
// a literal byte count, for holes too large to fit in 31 bits.
const ExtendedHoleOffset = ^uint32(0)

// IsHole reports whether c represents a sparse hole instead of
// block-resident data.
func (c Chunk) IsHole() bool {
	return c.Size&HoleSizeBit != 0 || c.Offset == ExtendedHoleOffset
}

// Length returns the chunk's logical byte length, independent of
// whether it is a hole. Extended holes (Offset == ExtendedHoleOffset)
// report ExtendedLength rather than decoding Size as a byte count.
func (c Chunk) Length() uint64 {
	if c.Offset == ExtendedHoleOffset {
		return c.ExtendedLength
	}
	return uint64(c.Size &^ HoleSizeBit)
}

// DirEntry names one child of a directory: an index into the shared
// (deduplicated) name table plus the index of the inode it refers to.
type DirEntry struct {
	NameIndex  uint32
	InodeIndex uint32
}

// Directory is a contiguous run of DirEntry records plus a back-pointer
// to its own containing directory, mirroring frozen metadata's
// first_entry/parent_entry scheme (spec.md's directory tree).
type Directory struct {
	FirstEntry uint32 // index of the first DirEntry belonging to this directory
	ParentIdx  uint32 // index of the containing directory (0, itself, for the root)
}

// InodeData is one inode's mode/ownership/timestamp fields, plus the
// index range of chunks (for regular files) or inline data.
type InodeData struct {
	ModeIndex    uint32
	OwnerIndex   uint32
	GroupIndex   uint32
	MTimeOffset  int64
	ATimeOffset  int64
	CTimeOffset  int64
	ChunkBegin   uint32
	ChunkEnd     uint32
	InlineData   []byte // set instead of chunks for very small regular files
}

// IsRegular reports whether the inode carries file content, either
// chunk-addressed or inline (as opposed to a directory or a symlink).
func (i InodeData) IsRegular() bool { return i.ChunkEnd > i.ChunkBegin || i.InlineData != nil }
