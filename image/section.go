package image

import (
	"crypto/sha512"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/mhx/dwarfs-sub004/fileview"
)

// Section is a lazy facade over a section header and its payload
// (spec.md §4.3), mirroring how KarpelesLab/squashfs's tableReader lazily
// pulls and decompresses table blocks on demand.
type Section struct {
	header SectionHeaderV2
	offset int64 // byte offset of the header within the image
}

// Header returns the section's decoded header.
func (s *Section) Header() SectionHeaderV2 { return s.header }

// Offset is the section's start within the image.
func (s *Section) Offset() int64 { return s.offset }

// End is the byte offset immediately following the section's payload.
func (s *Section) End() int64 {
	return s.offset + sectionHeaderV2Size + int64(s.header.Length)
}

// Type returns the section's payload kind.
func (s *Section) Type() Type { return s.header.Type }

// Compression returns the section's compression algorithm.
func (s *Section) Compression() Compression { return s.header.Compression }

// SectionNumber returns the monotone section index (dense from 0).
func (s *Section) SectionNumber() uint32 { return s.header.SectionNumber }

// Name returns a short human-readable label, the way fs_section::name()
// does for diagnostics.
func (s *Section) Name() string {
	return fmt.Sprintf("section#%d(%s)", s.header.SectionNumber, s.header.Type)
}

// Description is a longer diagnostic string.
func (s *Section) Description() string {
	return fmt.Sprintf("%s, %d bytes, compression=%d", s.Name(), s.header.Length, s.header.Compression)
}

// hasXXH3 reports whether the header carries a non-zero xxh3 checksum.
// Older images may omit one of the two hashes; spec.md §7 accepts either
// pass when the other is absent.
func (s *Section) hasXXH3() bool { return s.header.XXH3_64 != 0 }

func (s *Section) hasSHA512() bool {
	for _, b := range s.header.SHA512_256 {
		if b != 0 {
			return true
		}
	}
	return false
}

// Data returns the section's compressed payload span, reading it from v
// into a freshly allocated slice.
func (s *Section) Data(v fileview.View) ([]byte, error) {
	payloadOff := s.offset + sectionHeaderV2Size
	buf := make([]byte, s.header.Length)
	if err := v.CopyBytes(buf, payloadOff, int64(s.header.Length)); err != nil {
		return nil, fmt.Errorf("image: read section %d payload: %w", s.header.SectionNumber, err)
	}
	return buf, nil
}

// tailBytes returns the header bytes from fieldOffset (within the 64-byte
// header) through the end of the payload — "everything following" the
// named field, per spec.md §3.
func (s *Section) tailBytes(v fileview.View, fieldOffset int64) ([]byte, error) {
	hdrBuf := make([]byte, sectionHeaderV2Size)
	if err := v.CopyBytes(hdrBuf, s.offset, sectionHeaderV2Size); err != nil {
		return nil, err
	}
	payload, err := s.Data(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, int64(len(hdrBuf))-fieldOffset+int64(len(payload)))
	out = append(out, hdrBuf[fieldOffset:]...)
	out = append(out, payload...)
	return out, nil
}

// CheckFast verifies the xxh3_64 checksum, covering everything following
// that field in the header plus the payload.
func (s *Section) CheckFast(v fileview.View) (bool, error) {
	if !s.hasXXH3() {
		// No checksum recorded; pass iff the integrity hash is present
		// and will be checked separately (spec.md §7).
		return s.hasSHA512(), nil
	}
	tail, err := s.tailBytes(v, 16) // offset of field after xxh3_64
	if err != nil {
		return false, err
	}
	return xxh3.Hash(tail) == s.header.XXH3_64, nil
}

// Check verifies both xxh3_64 (if present) and sha2_512_256 (if present).
// At least one must verify; spec.md invariant 2.
func (s *Section) Check(v fileview.View) (bool, error) {
	fastOK, err := s.CheckFast(v)
	if err != nil {
		return false, err
	}
	if !s.hasSHA512() {
		return fastOK, nil
	}
	tail, err := s.tailBytes(v, 48) // offset of field after sha2_512_256
	if err != nil {
		return false, err
	}
	sum := sha512.Sum512_256(tail)
	shaOK := sum == s.header.SHA512_256
	if !s.hasXXH3() {
		return shaOK, nil
	}
	// Invariant: either hash verifying the payload is sufficient.
	return fastOK || shaOK, nil
}
