// Package codec implements the compression registry and the incremental
// decompressors the block cache drives (spec.md §4.4). It generalizes the
// whole-buffer RegisterDecompressor/MakeDecompressor registry from
// KarpelesLab/squashfs's comp_zstd.go/comp_xz.go into an incremental,
// frame-at-a-time contract so a cached block can publish partial progress
// while a large block is still decompressing.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mhx/dwarfs-sub004/bytebuffer"
	"github.com/mhx/dwarfs-sub004/image"
)

// ErrUnknownCompression is returned when no decoder is registered for a
// compression identifier.
var ErrUnknownCompression = errors.New("codec: unknown compression algorithm")

// Decompressor streams uncompressed bytes into a target buffer, producing
// output in frames rather than all at once so callers can observe and
// serve partial progress (cached_block.decompress_until, spec.md §4.6).
type Decompressor interface {
	// UncompressedSize is known up front, read from a varint or frame
	// header depending on the algorithm.
	UncompressedSize() (int, error)

	// StartDecompression attaches target as the sink and freezes its
	// memory location; implementations must reserve target's full
	// capacity before returning. Must be called exactly once.
	StartDecompression(target *bytebuffer.Buffer) error

	// DecompressFrame produces the next slice of uncompressed output.
	// Returns true once the sink is fully drained.
	DecompressFrame() (done bool, err error)
}

// Factory builds a Decompressor over a compressed payload.
type Factory func(compressed []byte) (Decompressor, error)

// Registry maps compression identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[image.Compression]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[image.Compression]Factory)}
}

// Register installs factory for compression id, overwriting any previous
// registration — mirrors squashfs.RegisterDecompressor's init()-time
// self-registration, but without relying on package-level global state so
// multiple registries (e.g. test vs. production) can coexist.
func (r *Registry) Register(id image.Compression, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// New builds a Decompressor for the given compression id and payload.
func (r *Registry) New(id image.Compression, compressed []byte) (Decompressor, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, id)
	}
	return factory(compressed)
}

// Known reports whether id has a registered factory.
func (r *Registry) Known(id image.Compression) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// DefaultRegistry returns a registry with every decoder this module ships
// registered: None, Zstd, LZ4/LZ4HC, LZMA (XZ container), and Brotli.
// FLAC and RicePP (spec.md's optional algorithms for audio-categorized
// blocks) are intentionally not wired: nothing in this read-path core
// decodes audio content itself, only file bytes, so no component would
// ever call New with those identifiers — see DESIGN.md.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(image.CompressionNone, newNoneDecompressor)
	r.Register(image.CompressionZstd, newZstdDecompressor)
	r.Register(image.CompressionLZ4, newLZ4Decompressor)
	r.Register(image.CompressionLZ4HC, newLZ4Decompressor)
	r.Register(image.CompressionLZMA, newLZMADecompressor)
	r.Register(image.CompressionBrotli, newBrotliDecompressor)
	return r
}
