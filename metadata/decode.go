package metadata

import (
	"encoding/binary"
	"fmt"

	"github.com/mhx/dwarfs-sub004/internal/packedint"
)

// cursor is a sequential little-endian reader over a MetadataV2
// section's decompressed payload, the same manual field-by-field
// approach image/header.go uses for the section header rather than a
// reflection-based whole-struct decode. It accumulates the first error
// encountered and every accessor becomes a no-op once set, so Decode can
// read the whole layout without an if err != nil after every field.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cursor) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *cursor) u8() uint8 {
	if c.err != nil {
		return 0
	}
	if c.pos+1 > len(c.data) {
		c.fail(fmt.Errorf("metadata: truncated section at offset %d", c.pos))
		return 0
	}
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *cursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	if c.pos+4 > len(c.data) {
		c.fail(fmt.Errorf("metadata: truncated section at offset %d", c.pos))
		return 0
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	if c.err != nil {
		return 0
	}
	if c.pos+8 > len(c.data) {
		c.fail(fmt.Errorf("metadata: truncated section at offset %d", c.pos))
		return 0
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) i64() int64 { return int64(c.u64()) }

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos+n > len(c.data) {
		c.fail(fmt.Errorf("metadata: truncated section at offset %d (want %d bytes)", c.pos, n))
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

// decodeStringTable reads count length-prefixed entries, expanding them
// through an FSST dictionary first when dictLen > 0 (read immediately
// ahead of the entries, as frozen metadata's string_table layout does).
func decodeStringTable(c *cursor, count, dictLen int) *StringTable {
	var dict []byte
	if dictLen > 0 {
		dict = c.bytes(dictLen)
	}
	entries := make([][]byte, count)
	for i := range entries {
		n := int(c.u32())
		entries[i] = c.bytes(n)
	}
	if c.err != nil {
		return nil
	}
	if dictLen > 0 {
		st, err := NewFSSTStringTable(dict, entries)
		if err != nil {
			c.fail(fmt.Errorf("metadata: fsst string table: %w", err))
			return nil
		}
		return st
	}
	return NewStringTable(entries)
}

// decodePackedIndex reads a packedint-packed array of length values,
// each bitWidth bits wide — the compact mode/uid/gid index columns
// frozen metadata stores instead of a full u32 per inode.
func decodePackedIndex(c *cursor, bitWidth uint, length int) *packedint.Array {
	if c.err != nil {
		return nil
	}
	nbytes := int((uint(length)*bitWidth + 7) / 8)
	data := c.bytes(nbytes)
	if c.err != nil {
		return nil
	}
	arr, err := packedint.NewArray(data, bitWidth, length)
	if err != nil {
		c.fail(fmt.Errorf("metadata: packed index: %w", err))
		return nil
	}
	return arr
}

// Decode parses payload — the plain little-endian encoding this
// package's doc comment describes — into a ready-to-query Tree. The
// layout is: a fixed header of table counts and bit widths, the
// names/symlinks string tables, the directory and dir-entry arrays, the
// packed mode/owner/group index columns, each inode's remaining
// (timestamp and chunk-range) fields, the flat mode/owner/group value
// tables, the chunk array, and finally the extended-hole-length table
// that ExtendedHoleOffset-sentineled chunks index into.
func Decode(payload []byte, enableNlink bool) (*Tree, error) {
	c := &cursor{data: payload}

	mtimeOnly := c.u8() != 0
	timeResSec := c.u32()
	nsecMult := c.u32()
	timebase := c.i64()

	namesCount := int(c.u32())
	namesFSSTLen := int(c.u32())
	symlinksCount := int(c.u32())
	symlinksFSSTLen := int(c.u32())
	dirsCount := int(c.u32())
	entriesCount := int(c.u32())
	inodesCount := int(c.u32())
	modesCount := int(c.u32())
	ownersCount := int(c.u32())
	groupsCount := int(c.u32())
	chunksCount := int(c.u32())
	extHoleCount := int(c.u32())
	modeBW := uint(c.u32())
	ownerBW := uint(c.u32())
	groupBW := uint(c.u32())

	names := decodeStringTable(c, namesCount, namesFSSTLen)
	symlinks := decodeStringTable(c, symlinksCount, symlinksFSSTLen)

	directories := make([]Directory, dirsCount)
	for i := range directories {
		directories[i] = Directory{FirstEntry: c.u32(), ParentIdx: c.u32()}
	}

	entries := make([]DirEntry, entriesCount)
	for i := range entries {
		entries[i] = DirEntry{NameIndex: c.u32(), InodeIndex: c.u32()}
	}

	modeIdx := decodePackedIndex(c, modeBW, inodesCount)
	ownerIdx := decodePackedIndex(c, ownerBW, inodesCount)
	groupIdx := decodePackedIndex(c, groupBW, inodesCount)
	if c.err != nil {
		return nil, c.err
	}

	inodes := make([]InodeData, inodesCount)
	for i := range inodes {
		inodes[i] = InodeData{
			ModeIndex:   uint32(modeIdx.Get(i)),
			OwnerIndex:  uint32(ownerIdx.Get(i)),
			GroupIndex:  uint32(groupIdx.Get(i)),
			MTimeOffset: c.i64(),
			ATimeOffset: c.i64(),
			CTimeOffset: c.i64(),
			ChunkBegin:  c.u32(),
			ChunkEnd:    c.u32(),
		}
	}

	modes := make([]uint32, modesCount)
	for i := range modes {
		modes[i] = c.u32()
	}
	owners := make([]uint32, ownersCount)
	for i := range owners {
		owners[i] = c.u32()
	}
	groups := make([]uint32, groupsCount)
	for i := range groups {
		groups[i] = c.u32()
	}

	chunks := make([]Chunk, chunksCount)
	for i := range chunks {
		chunks[i] = Chunk{Block: c.u32(), Offset: c.u32(), Size: c.u32()}
	}

	extHoles := make([]uint64, extHoleCount)
	for i := range extHoles {
		extHoles[i] = c.u64()
	}

	if c.err != nil {
		return nil, c.err
	}

	for i := range chunks {
		if chunks[i].Offset == ExtendedHoleOffset {
			idx := chunks[i].Size
			if int(idx) >= len(extHoles) {
				return nil, fmt.Errorf("metadata: chunk %d references extended hole %d, table has %d entries", i, idx, len(extHoles))
			}
			chunks[i].ExtendedLength = extHoles[idx]
		}
	}

	return NewTree(Config{
		Names:       names,
		Symlinks:    symlinks,
		Directories: directories,
		Entries:     entries,
		Inodes:      inodes,
		Modes:       modes,
		Owners:      owners,
		Groups:      groups,
		Chunks:      chunks,
		Timebase:    timebase,
		TimeRes:     NewTimeResolution(timebase, timeResSec, nsecMult, mtimeOnly),
		EnableNlink: enableNlink,
	}), nil
}
