package codec

import (
	"github.com/klauspost/compress/zstd"
)

// newZstdDecompressor decodes a zstd-framed block. Grounded on
// KarpelesLab/squashfs's comp_zstd.go, which registers
// zstd.ZipDecompressor() as its whole-buffer decoder; here the decoded
// bytes are additionally re-served to the target buffer frame-at-a-time
// (see stream.go).
func newZstdDecompressor(compressed []byte) (Decompressor, error) {
	return newStreamDecompressor(func() ([]byte, error) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(compressed, nil)
	}), nil
}
