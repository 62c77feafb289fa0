package codec

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// newLZMADecompressor decodes an XZ-container LZMA block. Grounded on
// KarpelesLab/squashfs's comp_xz.go, which wires the same
// github.com/ulikunitz/xz package for its XZ compression handler. DwarFS
// writes raw LZMA streams (not XZ-container) for its LZMA option; both
// forms are tried since the section header alone does not distinguish
// them, the way the writer's block_compressor picks one per configured
// codec.
func newLZMADecompressor(compressed []byte) (Decompressor, error) {
	return newStreamDecompressor(func() ([]byte, error) {
		if r, err := xz.NewReader(bytes.NewReader(compressed)); err == nil {
			if b, err := io.ReadAll(r); err == nil {
				return b, nil
			}
		}
		r, err := lzma.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	}), nil
}
