// Package testutil builds small, real DwarFS images in memory so tests
// can exercise the reader against conforming byte layouts without
// depending on a writer implementation. It generalizes the
// superblock-byte-twiddling helper fs_test.go used before the metadata
// decoder existed into a reusable section/checksum builder plus a
// MetadataV2 encoder (see metadata.go).
package testutil

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"github.com/mhx/dwarfs-sub004/image"
)

const sectionHeaderSize = 64

// Image accumulates section bytes for an in-memory DwarFS image. It
// always starts the filesystem at byte 0, so section offsets recorded
// in the index and the trailing back-pointer are absolute.
type Image struct {
	raw        []byte
	sectionNum uint32
	blockCount uint32
	sections   []sectionRef
}

type sectionRef struct {
	typ    image.Type
	offset int64
}

// NewImage returns an empty image builder.
func NewImage() *Image { return &Image{} }

// AddBlock appends a Block section and returns its block id — dense
// from 0 among Block sections only, matching fs.go's Open loop, which
// keys fs.blocks by a counter incremented solely on TypeBlock sections.
func (img *Image) AddBlock(data []byte) uint32 {
	id := img.blockCount
	img.blockCount++
	img.addSection(image.TypeBlock, image.CompressionNone, data)
	return id
}

// AddMetadataSchema appends a MetadataV2Schema section. This module
// never parses the schema itself (metadata package's doc comment
// explains why); the section only needs to exist, immediately before
// the MetadataV2 section, to satisfy image.FindOffset's
// plausible-first-section scan and to look like a real image.
func (img *Image) AddMetadataSchema(payload []byte) {
	img.addSection(image.TypeMetadataV2Schema, image.CompressionNone, payload)
}

// AddMetadataV2 appends the real MetadataV2 section.
func (img *Image) AddMetadataV2(payload []byte) {
	img.addSection(image.TypeMetadataV2, image.CompressionNone, payload)
}

// AddHistory appends a History section.
func (img *Image) AddHistory(payload []byte) {
	img.addSection(image.TypeHistory, image.CompressionNone, payload)
}

func (img *Image) addSection(typ image.Type, comp image.Compression, payload []byte) {
	offset := int64(len(img.raw))
	buf := make([]byte, sectionHeaderSize+len(payload))
	copy(buf[0:6], image.Magic[:])
	buf[6] = image.MajorVersion
	buf[7] = image.MinorVersion
	binary.LittleEndian.PutUint32(buf[48:52], img.sectionNum)
	binary.LittleEndian.PutUint16(buf[52:54], uint16(typ))
	binary.LittleEndian.PutUint16(buf[54:56], uint16(comp))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(len(payload)))
	copy(buf[sectionHeaderSize:], payload)

	// sha2_512_256 covers everything after its own field (offset 48);
	// write it first since xxh3_64 covers everything after its field
	// (offset 16), which includes the sha bytes just written.
	sha := sha512.Sum512_256(buf[48:])
	copy(buf[16:48], sha[:])
	sum := xxh3.Hash(buf[16:])
	binary.LittleEndian.PutUint64(buf[8:16], sum)

	img.raw = append(img.raw, buf...)
	img.sections = append(img.sections, sectionRef{typ: typ, offset: offset})
	img.sectionNum++
}

// FlipPayloadBit corrupts one bit of the payload of the sectionIndex'th
// section added so far (0-based, in add order). The checksums are left
// untouched on purpose, so the next integrity check against that
// section fails exactly the way a corrupted-in-transit image would.
func (img *Image) FlipPayloadBit(sectionIndex, byteOffset int) {
	payloadStart := img.sections[sectionIndex].offset + sectionHeaderSize
	img.raw[int(payloadStart)+byteOffset] ^= 0x01
}

// Finish appends a trailing SectionIndex section listing every section
// added so far, plus the 8-byte back-pointer image.Parser.findIndex
// reads from the end of the file, and returns the completed image.
func (img *Image) Finish() []byte {
	entries := make([]byte, 8*len(img.sections))
	for i, s := range img.sections {
		id := (uint64(s.typ) << 48) | uint64(s.offset)
		binary.LittleEndian.PutUint64(entries[i*8:], id)
	}
	indexOffset := int64(len(img.raw))
	img.addSection(image.TypeSectionIndex, image.CompressionNone, entries)

	backPointer := make([]byte, 8)
	binary.LittleEndian.PutUint64(backPointer, (uint64(image.TypeSectionIndex)<<48)|uint64(indexOffset))
	img.raw = append(img.raw, backPointer...)

	return img.raw
}
