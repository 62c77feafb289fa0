package codec

import (
	"fmt"

	"github.com/mhx/dwarfs-sub004/bytebuffer"
)

// frameSize bounds how much uncompressed output streamDecompressor copies
// into the target buffer per DecompressFrame call, so a large block's
// decompressed prefix grows in steps and waiters on an early range can be
// woken before the whole block has been copied (spec.md §4.7
// "decompression proceeds in frames").
const frameSize = 256 << 10

// streamDecompressor adapts a decoder that (like
// KarpelesLab/squashfs's comp_zstd.go/comp_xz.go decompressors) produces
// the whole uncompressed payload in one call into the incremental
// Decompressor contract cached_block drives: the payload is decoded once,
// eagerly, then served to the frozen target buffer frame-at-a-time so
// waiters can observe partial progress via range_end().
type streamDecompressor struct {
	decodeAll func() ([]byte, error)

	decoded  []byte
	target   *bytebuffer.Buffer
	produced int
}

func newStreamDecompressor(decodeAll func() ([]byte, error)) *streamDecompressor {
	return &streamDecompressor{decodeAll: decodeAll}
}

func (d *streamDecompressor) ensureDecoded() error {
	if d.decoded != nil {
		return nil
	}
	b, err := d.decodeAll()
	if err != nil {
		return fmt.Errorf("codec: decompress: %w", err)
	}
	d.decoded = b
	return nil
}

func (d *streamDecompressor) UncompressedSize() (int, error) {
	if err := d.ensureDecoded(); err != nil {
		return 0, err
	}
	return len(d.decoded), nil
}

func (d *streamDecompressor) StartDecompression(target *bytebuffer.Buffer) error {
	if err := d.ensureDecoded(); err != nil {
		return err
	}
	d.target = target
	if err := target.Reserve(len(d.decoded)); err != nil {
		return err
	}
	target.FreezeLocation()
	return target.Resize(0)
}

func (d *streamDecompressor) DecompressFrame() (bool, error) {
	remaining := len(d.decoded) - d.produced
	if remaining <= 0 {
		return true, nil
	}
	n := frameSize
	if n > remaining {
		n = remaining
	}

	cur := d.target.Len()
	if err := d.target.Resize(cur + n); err != nil {
		return false, err
	}
	copy(d.target.Bytes()[cur:cur+n], d.decoded[d.produced:d.produced+n])
	d.produced += n

	return d.produced >= len(d.decoded), nil
}
