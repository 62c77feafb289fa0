package dwarfs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mhx/dwarfs-sub004/bytebuffer"
	"github.com/mhx/dwarfs-sub004/cache"
	"github.com/mhx/dwarfs-sub004/codec"
	"github.com/mhx/dwarfs-sub004/fileview"
	"github.com/mhx/dwarfs-sub004/image"
	"golang.org/x/sync/semaphore"

	"github.com/mhx/dwarfs-sub004/internal/glob"
	"github.com/mhx/dwarfs-sub004/internal/xattr"
	"github.com/mhx/dwarfs-sub004/inode"
	"github.com/mhx/dwarfs-sub004/memmanager"
	"github.com/mhx/dwarfs-sub004/metadata"
	"github.com/mhx/dwarfs-sub004/reader"
	"github.com/mhx/dwarfs-sub004/workergroup"
)

// Filesystem composes the image parser, block cache, frozen metadata,
// and inode reader into the POSIX-shaped read API described by
// spec.md §4.10: find, getattr, access, opendir, readdir, readlink,
// statvfs, open, read, readv, seek, get_chunks.
type Filesystem struct {
	opts Options

	blocks map[uint32]*image.Section // dense by section_number among Block sections
	tree   *metadata.Tree
	xattrs *xattr.Table

	cache   *cache.Cache
	workers *workergroup.Group
	oc      *inode.OffsetCache
	mem     *memmanager.Manager // nil when ReadMemoryBudget is unset

	mu      sync.Mutex
	readers map[uint32]*inode.Reader
}

// blockSourceAdapter satisfies cache.Source over the Filesystem's
// parsed block-section table.
type blockSourceAdapter struct{ fs *Filesystem }

func (a blockSourceAdapter) BlockSection(blockID uint32) (*image.Section, error) {
	sec, ok := a.fs.blocks[blockID]
	if !ok {
		return nil, fmt.Errorf("dwarfs: no such block %d", blockID)
	}
	return sec, nil
}

// Open parses the image behind v (a plain-file or mmap view) and returns
// a ready-to-use Filesystem.
func Open(v fileview.View, opts ...Option) (*Filesystem, error) {
	o := newOptions(opts...)

	parser, err := image.NewParser(v, o.ImageOffset)
	if err != nil {
		return nil, fmt.Errorf("dwarfs: %w", err)
	}

	fs := &Filesystem{
		opts:    o,
		blocks:  make(map[uint32]*image.Section),
		readers: make(map[uint32]*inode.Reader),
	}

	var metaSection *image.Section
	var blockCount uint32
	for {
		sec, ok, err := parser.NextSection()
		if err != nil {
			return nil, fmt.Errorf("dwarfs: %w", err)
		}
		if !ok {
			break
		}
		switch sec.Type() {
		case image.TypeBlock:
			fs.blocks[blockCount] = sec
			blockCount++
		case image.TypeMetadataV2:
			metaSection = sec
		}
	}

	registry := codec.DefaultRegistry()

	if metaSection != nil {
		tree, err := loadMetadata(v, metaSection, o, registry)
		if err != nil {
			return nil, fmt.Errorf("dwarfs: load metadata: %w", err)
		}
		fs.tree = tree
	}
	fs.xattrs = loadXattrs(metaSection)

	fs.workers = workergroup.New(o.BlockCacheNumWorkers, o.BlockCacheNumWorkers*4)
	fs.oc = inode.NewOffsetCache(o.InodeReaderOffsetCacheChunkIndexInterval)
	fs.cache = cache.New(cache.Config{
		View:                  v,
		Source:                blockSourceAdapter{fs: fs},
		Registry:              registry,
		Workers:               fs.workers,
		Logger:                o.Logger,
		MaxBytes:              o.BlockCacheMaxBytes,
		DisableIntegrityCheck: o.BlockCacheDisableIntegrityCheck,
		MMRelease:             o.BlockCacheMMRelease,
	})
	if o.ReadMemoryBudget > 0 {
		fs.mem = memmanager.New(o.ReadMemoryBudget, 0)
	}

	return fs, nil
}

// loadMetadata is the integration seam between the raw MetadataV2
// section and the decoded metadata.Tree: it verifies the section
// (unless integrity checking is disabled), decompresses it if the
// image's writer compressed the metadata section the same way it does
// blocks, and hands the resulting bytes to metadata.Decode.
func loadMetadata(v fileview.View, sec *image.Section, o Options, registry *codec.Registry) (*metadata.Tree, error) {
	if !o.BlockCacheDisableIntegrityCheck {
		ok, err := sec.CheckFast(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrIntegrityCheck
		}
	}

	raw, err := sec.Data(v)
	if err != nil {
		return nil, err
	}
	payload, err := decompressSection(registry, sec, raw)
	if err != nil {
		return nil, err
	}
	return metadata.Decode(payload, o.MetadataEnableNlink)
}

// decompressSection fully expands a section's compressed payload using
// registry, the same decompressor contract the block cache drives
// incrementally (spec.md §4.6) but run to completion in one call since
// the metadata section is decoded once at mount rather than served
// through cache.Cache's byte-range interface.
func decompressSection(registry *codec.Registry, sec *image.Section, raw []byte) ([]byte, error) {
	if sec.Compression() == image.CompressionNone {
		return raw, nil
	}
	dec, err := registry.New(sec.Compression(), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCompression, err)
	}
	buf := bytebuffer.New()
	if err := dec.StartDecompression(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionError, err)
	}
	for {
		done, err := dec.DecompressFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionError, err)
		}
		if done {
			break
		}
	}
	return buf.Bytes(), nil
}

// loadXattrs is the integration seam between the raw MetadataV2 section
// and the decoded per-inode xattr index. It does not decode anything from
// the section: it always returns an empty table, so every image's xattr
// pool reads as empty rather than Open failing outright.
func loadXattrs(sec *image.Section) *xattr.Table {
	_ = sec
	return xattr.NewTable(nil, nil)
}

// Close releases the cache's worker pool.
func (fs *Filesystem) Close() error {
	fs.workers.Close()
	return nil
}

// Find resolves a slash-separated path to an inode number.
func (fs *Filesystem) Find(path string) (uint32, error) {
	return fs.tree.Find(path)
}

// Attr is the subset of POSIX stat(2) fields the read path exposes.
type Attr struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Size  int64
	Nlink uint32
}

// Getattr returns POSIX attributes for ino.
func (fs *Filesystem) Getattr(ino uint32) (Attr, error) {
	mode, err := fs.tree.Mode(ino)
	if err != nil {
		return Attr{}, err
	}
	uid, gid, err := fs.tree.Owner(ino)
	if err != nil {
		return Attr{}, err
	}
	var size int64
	if r, err := fs.readerFor(ino); err == nil {
		size = r.Size()
	}
	return Attr{
		Mode:  mode,
		UID:   uid,
		GID:   gid,
		Size:  size,
		Nlink: fs.tree.Nlink(ino),
	}, nil
}

// Readdir lists the directory entries of ino, including the synthetic
// "." and ".." entries every POSIX directory carries (spec.md's
// readdir operation): metadata.Tree's own DirEntry table only ever
// stores real children, so the facade prepends them here rather than
// teaching Tree about a convention its other callers (Find, Walk,
// Nlink) don't need.
func (fs *Filesystem) Readdir(ino uint32) ([]string, error) {
	entries, err := fs.tree.ReadDir(ino)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries)+2)
	names = append(names, ".", "..")
	for _, e := range entries {
		name, err := fs.tree.Name(e)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// FindGlob returns the paths of every inode under "/" whose path
// matches the shell-style glob pattern, for CLI introspection tooling
// that wants pattern-based lookup rather than a single exact path
// (spec.md's find operation's sibling use).
func (fs *Filesystem) FindGlob(pattern string) ([]string, error) {
	re, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var matches []string
	err = fs.tree.Walk(metadata.RootInode, "", func(path string, ino uint32) error {
		if re.MatchString(path) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Readlink returns the symlink target stored for ino's symlink index.
func (fs *Filesystem) Readlink(symlinkIndex uint32) string {
	return fs.tree.Symlink(symlinkIndex)
}

// readerFor returns (creating if needed) the inode.Reader for ino,
// built from ino's real chunk list (metadata.Tree.Chunks).
func (fs *Filesystem) readerFor(ino uint32) (*inode.Reader, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if r, ok := fs.readers[ino]; ok {
		return r, nil
	}
	chunks, err := fs.tree.Chunks(ino)
	if err != nil {
		return nil, err
	}
	r := inode.NewReader(ino, chunks, fs.cache, fs.oc)
	fs.readers[ino] = r
	return r, nil
}

// OpenFile returns a handle for ino. Per spec.md §4.10, the handle is just
// the inode number; there is no extra per-handle mutable state.
func (fs *Filesystem) OpenFile(ino uint32) (uint32, error) {
	if _, err := fs.readerFor(ino); err != nil {
		return 0, err
	}
	return ino, nil
}

// Read fills dest from handle's content starting at offset.
func (fs *Filesystem) Read(ctx context.Context, handle uint32, dest []byte, offset int64) (int, error) {
	if fs.mem != nil {
		grant, err := fs.mem.Request(ctx, "read", int64(len(dest)), 0, false)
		if err != nil {
			return 0, err
		}
		defer grant.Release()
	}

	r, err := fs.readerFor(handle)
	if err != nil {
		return 0, err
	}
	n, err := r.Read(ctx, dest, offset)
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

// ReadV is the zero-copy counterpart to Read. The returned release
// func must be called once the caller is done with the returned
// ranges; it is what actually frees any memory-manager grant taken out
// for the call, so releasing it early (before the caller is done
// reading the bytes) would let retained data exceed the configured
// ReadMemoryBudget — the same hazard reader.Batch.Release guards
// against for FileReader.
func (fs *Filesystem) ReadV(ctx context.Context, handle uint32, offset, size int64) ([]inode.RangeOrHole, func(), error) {
	release := func() {}
	if fs.mem != nil {
		grant, err := fs.mem.Request(ctx, "readv", size, 0, false)
		if err != nil {
			return nil, release, err
		}
		release = grant.Release
	}

	r, err := fs.readerFor(handle)
	if err != nil {
		return nil, release, err
	}
	ranges, err := r.ReadV(ctx, offset, size)
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return ranges, release, nil
}

// Seek implements SEEK_DATA/SEEK_HOLE for handle.
func (fs *Filesystem) Seek(handle uint32, offset int64, whence inode.Whence) (int64, error) {
	r, err := fs.readerFor(handle)
	if err != nil {
		return 0, err
	}
	return r.Seek(offset, whence)
}

// StreamFile returns a bounded-memory streaming reader over handle's
// full content (spec.md §4.9): each call to the returned
// reader.FileReader's Next admits at most maxBytes of outstanding
// decompressed data against sem, which the caller may share across
// several concurrently streamed files to bound their combined memory
// footprint.
func (fs *Filesystem) StreamFile(handle uint32, sem *semaphore.Weighted, maxBytes int64) (*reader.FileReader, error) {
	r, err := fs.readerFor(handle)
	if err != nil {
		return nil, err
	}
	return reader.NewFileReader(r, sem, maxBytes), nil
}

// GetChunks returns the raw chunk list backing an inode, for
// introspection tooling.
func (fs *Filesystem) GetChunks(ino uint32) ([]metadata.Chunk, error) {
	return fs.tree.Chunks(ino)
}

// ListXattr returns the extended attributes attached to ino.
func (fs *Filesystem) ListXattr(ino uint32) ([]xattr.Attr, error) {
	return fs.xattrs.List(ino)
}

// GetXattr returns the value of a single named extended attribute on
// ino, reporting ok=false if ino has no such attribute.
func (fs *Filesystem) GetXattr(ino uint32, name string) ([]byte, bool, error) {
	return fs.xattrs.Get(ino, name)
}

// Statvfs reports coarse filesystem-level statistics.
type Statvfs struct {
	BlockSize  uint32
	TotalBytes int64
	Files      int64
}

// Statvfs returns aggregate statistics derived from the parsed block
// section table and the decoded inode count.
func (fs *Filesystem) Statvfs() Statvfs {
	var total int64
	for _, sec := range fs.blocks {
		total += int64(sec.Header().Length)
	}
	var files int64
	if fs.tree != nil {
		files = int64(fs.tree.InodeCount())
	}
	return Statvfs{BlockSize: 1 << 20, TotalBytes: total, Files: files}
}
