package codec

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// newBrotliDecompressor decodes an optional Brotli-compressed block
// (spec.md §4.4 lists Brotli among the optional algorithms), grounded on
// the pure-Go brotli decoder used across the retrieved pack's archive
// readers.
func newBrotliDecompressor(compressed []byte) (Decompressor, error) {
	return newStreamDecompressor(func() ([]byte, error) {
		r := brotli.NewReader(bytes.NewReader(compressed))
		return io.ReadAll(r)
	}), nil
}
