package codec

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// newLZ4Decompressor decodes an LZ4 or LZ4HC-framed block (the two share
// a decoder; HC only affects the encoder's search effort). Grounded on
// keeword-go-diskfs's use of github.com/pierrec/lz4/v4 for its SquashFS
// reader's LZ4 support.
func newLZ4Decompressor(compressed []byte) (Decompressor, error) {
	return newStreamDecompressor(func() ([]byte, error) {
		r := lz4.NewReader(bytes.NewReader(compressed))
		return io.ReadAll(r)
	}), nil
}
