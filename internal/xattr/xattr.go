// Package xattr exposes the read-only extended-attribute lists frozen
// metadata attaches to inodes, the way dpeckett-archivefs exposes
// xattrs for its tar/erofs-backed filesystem views.
package xattr

import "fmt"

// Attr is one extended attribute key/value pair.
type Attr struct {
	Name  string
	Value []byte
}

// Table is the per-inode xattr index: inode index -> list of Attr
// indexes into a shared, deduplicated (name, value) pool.
type Table struct {
	pool     []Attr
	perInode map[uint32][]uint32
}

// NewTable builds a Table from a shared attribute pool and a per-inode
// index mapping.
func NewTable(pool []Attr, perInode map[uint32][]uint32) *Table {
	return &Table{pool: pool, perInode: perInode}
}

// List returns the extended attributes attached to ino, or nil if it
// has none.
func (t *Table) List(ino uint32) ([]Attr, error) {
	idxs, ok := t.perInode[ino]
	if !ok {
		return nil, nil
	}
	out := make([]Attr, 0, len(idxs))
	for _, i := range idxs {
		if int(i) >= len(t.pool) {
			return nil, fmt.Errorf("xattr: pool index %d out of range", i)
		}
		out = append(out, t.pool[i])
	}
	return out, nil
}

// Get returns the value of a single named attribute on ino.
func (t *Table) Get(ino uint32, name string) ([]byte, bool, error) {
	attrs, err := t.List(ino)
	if err != nil {
		return nil, false, err
	}
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true, nil
		}
	}
	return nil, false, nil
}
