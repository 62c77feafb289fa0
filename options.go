package dwarfs

import "log/slog"

// ImageOffsetAuto tells the parser to scan for the filesystem start rather
// than trusting a fixed offset.
const ImageOffsetAuto int64 = -1

// Options holds the configuration recognized by the reader (spec.md §6).
// Every field has a conservative default from DefaultOptions; use With* functions
// to override it, the way KarpelesLab/squashfs composes Option values over
// a Superblock.
type Options struct {
	// BlockCacheMaxBytes bounds resident decompressed memory.
	BlockCacheMaxBytes uint64

	// BlockCacheNumWorkers bounds decompression concurrency (>=1).
	BlockCacheNumWorkers int

	// BlockCacheDisableIntegrityCheck skips the fast xxh3 checksum before
	// decompression. Dangerous; only for recovering corrupt images.
	BlockCacheDisableIntegrityCheck bool

	// BlockCacheMMRelease advises the backing storage that a block's
	// compressed pages are no longer needed once decompression finishes.
	BlockCacheMMRelease bool

	// MetadataEnableNlink computes and exposes hardlink counts.
	MetadataEnableNlink bool

	// ImageOffset is a fixed byte offset of the filesystem start, or
	// ImageOffsetAuto to scan for the magic.
	ImageOffset int64

	// InodeReaderOffsetCacheChunkIndexInterval is K in spec.md §4.8: the
	// offset cache records a file offset every K chunks.
	InodeReaderOffsetCacheChunkIndexInterval int

	// InodeReaderOffsetCacheUpdaterMaxInlineOffsets is recorded here
	// (default 16) but read by no component: inode.OffsetCache has no
	// inline updater buffer for this value to bound.
	InodeReaderOffsetCacheUpdaterMaxInlineOffsets int

	// Logger is handed to the block cache, which stores it. Defaults to
	// slog.Default() when nil. No component emits log records through it.
	Logger *slog.Logger

	// ReadMemoryBudget, when nonzero, gates every sized Read/ReadV call
	// behind a memmanager.Manager credit request for the requested byte
	// count, bounding how much decompressed data may be in flight across
	// all concurrent readers sharing this Filesystem (spec.md §4.12:
	// "available to sized reads"). Zero disables the gate.
	ReadMemoryBudget int64
}

// Option mutates an Options value; the zero Options is never passed to a
// component directly; DefaultOptions() seeds the conservative defaults and
// Option values layer on top, mirroring squashfs.Option over *Superblock.
type Option func(*Options)

// DefaultOptions returns the baseline configuration a facade falls back to
// when the caller supplies no overrides.
func DefaultOptions() Options {
	return Options{
		BlockCacheMaxBytes:                            512 << 20,
		BlockCacheNumWorkers:                           2,
		ImageOffset:                                    ImageOffsetAuto,
		InodeReaderOffsetCacheChunkIndexInterval:       256,
		InodeReaderOffsetCacheUpdaterMaxInlineOffsets:  16,
	}
}

func WithBlockCacheMaxBytes(n uint64) Option {
	return func(o *Options) { o.BlockCacheMaxBytes = n }
}

func WithBlockCacheNumWorkers(n int) Option {
	return func(o *Options) { o.BlockCacheNumWorkers = n }
}

func WithDisableIntegrityCheck(disable bool) Option {
	return func(o *Options) { o.BlockCacheDisableIntegrityCheck = disable }
}

func WithBlockCacheMMRelease(release bool) Option {
	return func(o *Options) { o.BlockCacheMMRelease = release }
}

func WithMetadataEnableNlink(enable bool) Option {
	return func(o *Options) { o.MetadataEnableNlink = enable }
}

func WithImageOffset(offset int64) Option {
	return func(o *Options) { o.ImageOffset = offset }
}

func WithOffsetCacheChunkIndexInterval(k int) Option {
	return func(o *Options) { o.InodeReaderOffsetCacheChunkIndexInterval = k }
}

func WithOffsetCacheUpdaterMaxInlineOffsets(n int) Option {
	return func(o *Options) { o.InodeReaderOffsetCacheUpdaterMaxInlineOffsets = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithReadMemoryBudget(bytes int64) Option {
	return func(o *Options) { o.ReadMemoryBudget = bytes }
}

func newOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.BlockCacheNumWorkers < 1 {
		o.BlockCacheNumWorkers = 1
	}
	return o
}
