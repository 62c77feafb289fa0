package image

import (
	"errors"
	"fmt"

	"github.com/mhx/dwarfs-sub004/fileview"
)

var (
	// ErrBadMagic is returned when no occurrence of the DWARFS magic
	// parses as a plausible filesystem start.
	ErrBadMagic = errors.New("image: magic not found")
	// ErrUnsupportedVersion is returned for an unknown major version or a
	// minor version newer than this reader supports.
	ErrUnsupportedVersion = errors.New("image: unsupported version")
	// ErrTruncated is returned when a header or section would read past
	// the end of the view.
	ErrTruncated = errors.New("image: truncated image")

	sectionTypeMask = uint64(0xffff) << 48
	sectionOffMask  = ^sectionTypeMask
)

// knownV1Compression lists the compression identifiers the (legacy) v1
// image format supported, used only to validate a magic candidate — see
// original_source/src/reader/internal/filesystem_parser.cpp.
func knownV1Compression(c Compression) bool {
	switch c {
	case CompressionNone, CompressionLZMA, CompressionZstd, CompressionLZ4, CompressionLZ4HC:
		return true
	}
	return false
}

// Parser locates the filesystem start within a view, then walks or
// index-jumps through its sections (spec.md §4.2).
type Parser struct {
	v            fileview.View
	imageOffset  int64
	imageSize    int64
	major, minor uint8
	version      int // 1 or 2, mirrors filesystem_parser::version_
	index        []uint64
	cursor       int
	cursorOff    int64
	seqStarted   bool
}

// ImageOffsetAuto tells NewParser and FindOffset to scan for the filesystem
// start rather than trusting a fixed offset.
const ImageOffsetAuto int64 = -1

// NewParser locates the filesystem within v. imageOffset is either a fixed
// byte offset or ImageOffsetAuto to scan for the magic.
func NewParser(v fileview.View, imageOffset int64) (*Parser, error) {
	off, err := FindOffset(v, imageOffset)
	if err != nil {
		return nil, err
	}

	p := &Parser{v: v, imageOffset: off}

	if off+6 > v.Size() {
		return nil, fmt.Errorf("%w: no room for header", ErrTruncated)
	}
	// Peek at major/minor: for v2 the first 8 bytes of a section header
	// carry magic+major+minor; for v1 a separate 8-byte file_header does.
	peek := make([]byte, 8)
	if err := v.CopyBytes(peek, off, 8); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	major, minor := peek[6], peek[7]
	if major != MajorVersion {
		return nil, fmt.Errorf("%w: major=%d", ErrUnsupportedVersion, major)
	}
	if minor > MinorVersion {
		return nil, fmt.Errorf("%w: minor=%d", ErrUnsupportedVersion, minor)
	}
	p.major, p.minor = major, minor
	p.version = 2
	if minor < 2 {
		p.version = 1
	}

	p.imageSize = v.Size() - off

	if p.minor >= 4 {
		p.findIndex()
	}

	p.Rewind()
	return p, nil
}

// FindOffset locates the filesystem start. When imageOffset is not
// ImageOffsetAuto it is returned unchanged; otherwise the view is scanned
// for the magic and each candidate validated the way
// filesystem_parser::find_image_offset does: the first section must parse
// as a Block or MetadataV2Schema with a known compression, and the
// section that follows it must be a plausible continuation.
func FindOffset(v fileview.View, imageOffset int64) (int64, error) {
	if imageOffset != ImageOffsetAuto {
		return imageOffset, nil
	}

	size := v.Size()
	start := int64(0)
	magicLen := int64(len(Magic))

	for start+magicLen < size {
		pos, found, err := scanForMagic(v, start, size)
		if err != nil {
			return 0, err
		}
		if !found {
			break
		}

		if pos+sectionHeaderV2Size >= size {
			start = pos + magicLen
			continue
		}

		hdrBuf := make([]byte, sectionHeaderV2Size)
		if err := v.CopyBytes(hdrBuf, pos, sectionHeaderV2Size); err != nil {
			return 0, err
		}
		var sh SectionHeaderV2
		decodeSectionHeaderV2(hdrBuf, &sh)

		if sh.validMagic() && plausibleFirstSection(v, pos, &sh, size) {
			return pos, nil
		}

		start = pos + magicLen
	}

	return 0, ErrBadMagic
}

func scanForMagic(v fileview.View, start, size int64) (int64, bool, error) {
	// A naive byte-at-a-time scan; images are read via positional
	// CopyBytes so this degrades gracefully for non-mmap backings too.
	need := int64(len(Magic))
	for pos := start; pos+need <= size; pos++ {
		b := make([]byte, need)
		if err := v.CopyBytes(b, pos, need); err != nil {
			return 0, false, err
		}
		if string(b) == string(Magic[:]) {
			return pos, true, nil
		}
	}
	return 0, false, nil
}

func plausibleFirstSection(v fileview.View, pos int64, sh *SectionHeaderV2, size int64) bool {
	if sh.Type != TypeBlock && sh.Type != TypeMetadataV2Schema {
		return false
	}
	if !knownV1Compression(sh.Compression) && sh.Compression > CompressionRicePP {
		return false
	}
	if sh.Length == 0 {
		return false
	}

	nextPos := pos + sectionHeaderV2Size + int64(sh.Length)
	if nextPos+sectionHeaderV2Size >= size {
		// Can't validate a follow-on section; accept on first-section
		// plausibility alone (e.g. a single-section probe image).
		return true
	}

	nextBuf := make([]byte, sectionHeaderV2Size)
	if err := v.CopyBytes(nextBuf, nextPos, sectionHeaderV2Size); err != nil {
		return false
	}
	var nsh SectionHeaderV2
	decodeSectionHeaderV2(nextBuf, &nsh)
	if !nsh.validMagic() {
		return false
	}

	if sh.Type == TypeBlock {
		return nsh.Type == TypeBlock || nsh.Type == TypeMetadataV2Schema
	}
	return nsh.Type == TypeMetadataV2
}

// findIndex loads the trailing section index, if present, verifying its
// checksum before trusting it (spec.md Open Question 2). On failure the
// parser silently falls back to sequential section walking.
func (p *Parser) findIndex() {
	if p.imageSize < 8 {
		return
	}
	tail := make([]byte, 8)
	if err := p.v.CopyBytes(tail, p.imageOffset+p.imageSize-8, 8); err != nil {
		return
	}
	last := byteOrder.Uint64(tail)
	if Type(last>>48) != TypeSectionIndex {
		return
	}
	indexPos := int64(last & sectionOffMask)
	absPos := p.imageOffset + indexPos
	if absPos >= p.imageOffset+p.imageSize {
		return
	}

	hdrBuf := make([]byte, sectionHeaderV2Size)
	if err := p.v.CopyBytes(hdrBuf, absPos, sectionHeaderV2Size); err != nil {
		return
	}
	var sh SectionHeaderV2
	decodeSectionHeaderV2(hdrBuf, &sh)
	sec := &Section{header: sh, offset: absPos}

	ok, err := sec.CheckFast(p.v)
	if err != nil || !ok {
		return
	}

	payload, err := sec.Data(p.v)
	if err != nil {
		return
	}
	if len(payload)%8 != 0 {
		return
	}
	index := make([]uint64, len(payload)/8)
	for i := range index {
		index[i] = byteOrder.Uint64(payload[i*8 : i*8+8])
	}
	p.index = index
}

// HasIndex reports whether a usable section index was found.
func (p *Parser) HasIndex() bool { return len(p.index) > 0 }

// Version returns a human-readable version string, e.g. "2.5 [2]".
func (p *Parser) Version() string {
	return fmt.Sprintf("%d.%d [%d]", p.major, p.minor, p.version)
}

// FilesystemSize is the total size of the filesystem area, header
// included.
func (p *Parser) FilesystemSize() int64 { return p.imageOffset + p.imageSize }

// Header returns the opaque bytes preceding the filesystem, or nil if the
// filesystem starts at offset 0.
func (p *Parser) Header() ([]byte, error) {
	if p.imageOffset == 0 {
		return nil, nil
	}
	buf := make([]byte, p.imageOffset)
	if err := p.v.CopyBytes(buf, 0, p.imageOffset); err != nil {
		return nil, err
	}
	return buf, nil
}

// Rewind resets iteration to the first section.
func (p *Parser) Rewind() {
	p.cursor = 0
	p.seqStarted = false
	if len(p.index) == 0 {
		p.cursorOff = p.imageOffset
		if p.version == 1 {
			// legacy images keep a small file_header ahead of the first
			// section header; approximate its size the way the original
			// magic+major+minor probe does (see FindOffset).
			p.cursorOff += 8
		}
	}
}

// NextSection returns the next section in order, or (nil, false) at EOF.
func (p *Parser) NextSection() (*Section, bool, error) {
	if len(p.index) == 0 {
		return p.nextSequential()
	}
	return p.nextFromIndex()
}

func (p *Parser) nextSequential() (*Section, bool, error) {
	p.seqStarted = true
	if p.cursorOff >= p.imageOffset+p.imageSize {
		return nil, false, nil
	}
	hdrBuf := make([]byte, sectionHeaderV2Size)
	if err := p.v.CopyBytes(hdrBuf, p.cursorOff, sectionHeaderV2Size); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var sh SectionHeaderV2
	decodeSectionHeaderV2(hdrBuf, &sh)
	sec := &Section{header: sh, offset: p.cursorOff}
	p.cursorOff = sec.End()
	p.cursor++
	return sec, true, nil
}

func (p *Parser) nextFromIndex() (*Section, bool, error) {
	if p.cursor >= len(p.index) {
		return nil, false, nil
	}
	id := p.index[p.cursor]
	typ := Type(id >> 48)
	off := int64(id&sectionOffMask) + p.imageOffset

	hdrBuf := make([]byte, sectionHeaderV2Size)
	if err := p.v.CopyBytes(hdrBuf, off, sectionHeaderV2Size); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	var sh SectionHeaderV2
	decodeSectionHeaderV2(hdrBuf, &sh)
	if sh.Type != typ {
		return nil, false, fmt.Errorf("%w: index/type mismatch", ErrIndexCorrupt)
	}
	sec := &Section{header: sh, offset: off}
	p.cursor++
	return sec, true, nil
}

// ErrIndexCorrupt is returned when a section referenced by the index does
// not match the index's own record of its type.
var ErrIndexCorrupt = errors.New("image: section index corrupt")
