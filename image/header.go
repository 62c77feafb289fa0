// Package image implements the on-disk DwarFS image layout: locating the
// filesystem start, walking section headers, and loading the section
// index (spec.md §4.2, §6). It plays the role KarpelesLab/squashfs's
// Superblock plays for SquashFS, but DwarFS has no single superblock —
// instead a repeating, self-describing section header precedes every
// payload.
package image

import (
	"encoding/binary"
)

// Magic is the 6-byte signature every DwarFS image begins with.
var Magic = [6]byte{'D', 'W', 'A', 'R', 'F', 'S'}

// MajorVersion is the only major version this reader understands.
const MajorVersion = 2

// MinorVersion is the newest minor version this reader understands;
// readers tolerate older minors and reject newer ones (spec.md §4.2).
const MinorVersion = 5

// Type identifies the kind of payload a section carries.
type Type uint16

const (
	TypeBlock            Type = 0
	TypeMetadataV2Schema Type = 7
	TypeMetadataV2       Type = 8
	TypeHistory          Type = 9
	TypeSectionIndex     Type = 10
)

func (t Type) String() string {
	switch t {
	case TypeBlock:
		return "BLOCK"
	case TypeMetadataV2Schema:
		return "METADATA_V2_SCHEMA"
	case TypeMetadataV2:
		return "METADATA_V2"
	case TypeHistory:
		return "HISTORY"
	case TypeSectionIndex:
		return "SECTION_INDEX"
	default:
		return "UNKNOWN"
	}
}

// Compression identifies a section's compression algorithm, matching the
// codec registry's identifiers (spec.md §4.4).
type Compression uint16

const (
	CompressionNone   Compression = 0
	CompressionLZ4    Compression = 1
	CompressionLZ4HC  Compression = 2
	CompressionZstd   Compression = 3
	CompressionLZMA   Compression = 4
	CompressionBrotli Compression = 5
	CompressionFLAC   Compression = 6
	CompressionRicePP Compression = 7
)

// sectionHeaderV2Size is the fixed, bit-exact size of the repeating
// section header (spec.md §6): 6(magic)+1+1+8+32+4+2+2+8.
const sectionHeaderV2Size = 6 + 1 + 1 + 8 + 32 + 4 + 2 + 2 + 8

// SectionHeaderV2 is the wire-exact repeating header preceding every
// section's payload. Field order is fixed; never reorder these fields.
type SectionHeaderV2 struct {
	Magic          [6]byte
	Major          uint8
	Minor          uint8
	XXH3_64        uint64
	SHA512_256     [32]byte
	SectionNumber  uint32
	Type           Type
	Compression    Compression
	Length         uint64
}

// byteOrder is always little-endian per spec.md §6.
var byteOrder = binary.LittleEndian

// decodeSectionHeaderV2 parses buf (which must be exactly
// sectionHeaderV2Size bytes) into h.
func decodeSectionHeaderV2(buf []byte, h *SectionHeaderV2) {
	copy(h.Magic[:], buf[0:6])
	h.Major = buf[6]
	h.Minor = buf[7]
	h.XXH3_64 = byteOrder.Uint64(buf[8:16])
	copy(h.SHA512_256[:], buf[16:48])
	h.SectionNumber = byteOrder.Uint32(buf[48:52])
	h.Type = Type(byteOrder.Uint16(buf[52:54]))
	h.Compression = Compression(byteOrder.Uint16(buf[54:56]))
	h.Length = byteOrder.Uint64(buf[56:64])
}

func (h *SectionHeaderV2) validMagic() bool {
	return h.Magic == Magic
}
