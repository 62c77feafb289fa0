package metadata

import (
	"fmt"
	"strings"
)

// Tree is the decoded directory structure plus the tables needed to
// answer path lookups, directory listings, and attribute queries
// without re-walking the raw section bytes on every call.
type Tree struct {
	names       *StringTable
	symlinks    *StringTable
	directories []Directory
	entries     []DirEntry
	inodes      []InodeData
	modes       []uint32
	owners      []uint32
	groups      []uint32
	chunks      []Chunk
	timebase    int64
	timeRes     TimeResolution
	enableNlink bool

	nlinkOnce  bool
	nlinkCache []uint32
}

// Config bundles the decoded tables a Tree is built from.
type Config struct {
	Names       *StringTable
	Symlinks    *StringTable
	Directories []Directory
	Entries     []DirEntry
	Inodes      []InodeData
	Modes       []uint32
	Owners      []uint32
	Groups      []uint32
	Chunks      []Chunk
	Timebase    int64
	TimeRes     TimeResolution
	EnableNlink bool
}

// NewTree assembles a Tree from already-decoded tables.
func NewTree(cfg Config) *Tree {
	return &Tree{
		names:       cfg.Names,
		symlinks:    cfg.Symlinks,
		directories: cfg.Directories,
		entries:     cfg.Entries,
		inodes:      cfg.Inodes,
		modes:       cfg.Modes,
		owners:      cfg.Owners,
		groups:      cfg.Groups,
		chunks:      cfg.Chunks,
		timebase:    cfg.Timebase,
		timeRes:     cfg.TimeRes,
		enableNlink: cfg.EnableNlink,
	}
}

// RootInode is the well-known inode index of the filesystem root.
const RootInode uint32 = 0

// Inode returns the decoded inode record at index ino.
func (t *Tree) Inode(ino uint32) (InodeData, error) {
	if int(ino) >= len(t.inodes) {
		return InodeData{}, fmt.Errorf("metadata: inode %d out of range", ino)
	}
	return t.inodes[ino], nil
}

// Mode returns the POSIX mode bits for ino.
func (t *Tree) Mode(ino uint32) (uint32, error) {
	in, err := t.Inode(ino)
	if err != nil {
		return 0, err
	}
	if int(in.ModeIndex) >= len(t.modes) {
		return 0, fmt.Errorf("metadata: mode index %d out of range", in.ModeIndex)
	}
	return t.modes[in.ModeIndex], nil
}

// Owner returns (uid, gid) for ino.
func (t *Tree) Owner(ino uint32) (uid, gid uint32, err error) {
	in, err := t.Inode(ino)
	if err != nil {
		return 0, 0, err
	}
	if int(in.OwnerIndex) >= len(t.owners) || int(in.GroupIndex) >= len(t.groups) {
		return 0, 0, fmt.Errorf("metadata: owner/group index out of range for inode %d", ino)
	}
	return t.owners[in.OwnerIndex], t.groups[in.GroupIndex], nil
}

// Chunks resolves the chunk list backing a regular-file inode's content,
// the read path's ChunkSource (spec.md's get_chunks operation).
func (t *Tree) Chunks(ino uint32) ([]Chunk, error) {
	in, err := t.Inode(ino)
	if err != nil {
		return nil, err
	}
	if in.ChunkEnd < in.ChunkBegin || int(in.ChunkEnd) > len(t.chunks) {
		return nil, fmt.Errorf("metadata: inode %d chunk range [%d,%d) out of range (have %d chunks)", ino, in.ChunkBegin, in.ChunkEnd, len(t.chunks))
	}
	return t.chunks[in.ChunkBegin:in.ChunkEnd], nil
}

// InodeCount reports the total number of inodes in the tree, the way
// statvfs's f_files counts total inode slots.
func (t *Tree) InodeCount() int { return len(t.inodes) }

// Symlink returns the target of a symlink inode.
func (t *Tree) Symlink(symlinkIndex uint32) string {
	if t.symlinks == nil {
		return ""
	}
	return t.symlinks.Get(symlinkIndex)
}

// direntry returns the DirEntry at index i.
func (t *Tree) direntry(i uint32) (DirEntry, error) {
	if int(i) >= len(t.entries) {
		return DirEntry{}, fmt.Errorf("metadata: dir entry %d out of range", i)
	}
	return t.entries[i], nil
}

// Name returns the file name of the DirEntry at index i.
func (t *Tree) Name(i uint32) (string, error) {
	e, err := t.direntry(i)
	if err != nil {
		return "", err
	}
	return t.names.Get(e.NameIndex), nil
}

// ReadDir lists the children of a directory inode as dir-entry indexes.
func (t *Tree) ReadDir(ino uint32) ([]uint32, error) {
	in, err := t.Inode(ino)
	if err != nil {
		return nil, err
	}
	dirIdx, err := t.dirIndexForInode(ino, in)
	if err != nil {
		return nil, err
	}
	dir := t.directories[dirIdx]
	var next Directory
	if int(dirIdx)+1 < len(t.directories) {
		next = t.directories[dirIdx+1]
	} else {
		next = Directory{FirstEntry: uint32(len(t.entries))}
	}
	out := make([]uint32, 0, next.FirstEntry-dir.FirstEntry)
	for i := dir.FirstEntry; i < next.FirstEntry; i++ {
		out = append(out, i)
	}
	return out, nil
}

// dirIndexForInode maps a directory inode back to its Directory record.
// Directory inodes are numbered contiguously from 0, so the Directory
// record index is the inode number itself; any inode at or past
// len(directories) is reported as not a directory.
func (t *Tree) dirIndexForInode(ino uint32, in InodeData) (uint32, error) {
	_ = in
	if int(ino) >= len(t.directories) {
		return 0, fmt.Errorf("metadata: inode %d is not a directory", ino)
	}
	return ino, nil
}

// Find resolves a slash-separated path (relative to the root) to an
// inode index, the read path's equivalent of a VFS path walk.
func (t *Tree) Find(path string) (uint32, error) {
	ino := RootInode
	path = strings.Trim(path, "/")
	if path == "" {
		return ino, nil
	}
	for _, component := range strings.Split(path, "/") {
		entries, err := t.ReadDir(ino)
		if err != nil {
			return 0, err
		}
		found := false
		for _, eidx := range entries {
			name, err := t.Name(eidx)
			if err != nil {
				return 0, err
			}
			if name == component {
				e, _ := t.direntry(eidx)
				ino = e.InodeIndex
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("metadata: no such path component %q", component)
		}
	}
	return ino, nil
}

// Walk performs a depth-first traversal of the tree starting at ino,
// calling fn with each visited inode's full slash-separated path
// (root is ""). Traversal stops and returns fn's error if it returns
// one.
func (t *Tree) Walk(ino uint32, path string, fn func(path string, ino uint32) error) error {
	if err := fn(path, ino); err != nil {
		return err
	}
	if int(ino) >= len(t.directories) {
		return nil
	}
	entries, err := t.ReadDir(ino)
	if err != nil {
		return err
	}
	for _, eidx := range entries {
		e, err := t.direntry(eidx)
		if err != nil {
			return err
		}
		name, err := t.Name(eidx)
		if err != nil {
			return err
		}
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		if err := t.Walk(e.InodeIndex, childPath, fn); err != nil {
			return err
		}
	}
	return nil
}

// Nlink computes the hardlink count for ino, counting directory entries
// across the whole tree that reference it (spec.md's
// metadata.enable_nlink option). The count is memoized on first use
// since it requires a full tree scan.
func (t *Tree) Nlink(ino uint32) uint32 {
	if int(ino) < len(t.directories) {
		return 2 + t.countSubdirs(ino)
	}
	if !t.enableNlink {
		return 1
	}
	if !t.nlinkOnce {
		t.computeNlinks()
	}
	if int(ino) < len(t.nlinkCache) {
		return t.nlinkCache[ino]
	}
	return 1
}

func (t *Tree) computeNlinks() {
	counts := make([]uint32, len(t.inodes))
	for _, e := range t.entries {
		if int(e.InodeIndex) < len(counts) {
			counts[e.InodeIndex]++
		}
	}
	// The root has no incoming directory entry of its own.
	if len(counts) > 0 {
		counts[RootInode]++
	}
	for ino := range counts {
		if int(ino) < len(t.directories) {
			counts[ino] += t.countSubdirs(uint32(ino))
		}
	}
	t.nlinkCache = counts
	t.nlinkOnce = true
}

// countSubdirs returns the number of direct subdirectory children of
// ino, contributing the ".." back-link each adds to ino's own count.
func (t *Tree) countSubdirs(ino uint32) uint32 {
	entries, err := t.ReadDir(ino)
	if err != nil {
		return 0
	}
	var n uint32
	for _, eidx := range entries {
		e, err := t.direntry(eidx)
		if err != nil {
			continue
		}
		if int(e.InodeIndex) < len(t.directories) {
			n++
		}
	}
	return n
}
