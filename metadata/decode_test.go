package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhx/dwarfs-sub004/metadata"
	"github.com/mhx/dwarfs-sub004/testutil"
)

// This file lives in the metadata_test (external) package rather than
// metadata itself so it can import testutil, which in turn imports
// metadata — an internal test file can't do that without creating an
// import cycle.

func TestDecodeRoundTripsTreeLookups(t *testing.T) {
	spec := testutil.MetadataSpec{
		Names:    [][]byte{[]byte("a"), []byte("sub"), []byte("b")},
		Symlinks: nil,
		Directories: []metadata.Directory{
			{FirstEntry: 0, ParentIdx: 0}, // root
			{FirstEntry: 2, ParentIdx: 0}, // sub
		},
		Entries: []metadata.DirEntry{
			{NameIndex: 0, InodeIndex: 2}, // a -> file
			{NameIndex: 1, InodeIndex: 1}, // sub -> dir
			{NameIndex: 2, InodeIndex: 3}, // b -> file
		},
		Inodes: []metadata.InodeData{
			{ModeIndex: 0, OwnerIndex: 0, GroupIndex: 0},              // 0: root dir
			{ModeIndex: 0, OwnerIndex: 0, GroupIndex: 0},              // 1: sub dir
			{ModeIndex: 1, OwnerIndex: 1, GroupIndex: 1, ChunkEnd: 1}, // 2: file a
			{ModeIndex: 1, OwnerIndex: 1, GroupIndex: 1, ChunkBegin: 1, ChunkEnd: 2}, // 3: file b
		},
		Modes:  []uint32{0o040755, 0o100644},
		Owners: []uint32{0, 1000},
		Groups: []uint32{0, 1000},
		Chunks: []metadata.Chunk{
			{Block: 0, Offset: 0, Size: 5},
			{Block: 0, Offset: 5, Size: 7},
		},
		Timebase:       1_700_000_000,
		TimeResSec:     1,
		NsecMultiplier: 0,
		MtimeOnly:      false,
	}

	payload := testutil.EncodeMetadataV2(spec)
	tr, err := metadata.Decode(payload, false)
	require.NoError(t, err)

	ino, err := tr.Find("sub/b")
	require.NoError(t, err)
	require.Equal(t, uint32(3), ino)

	mode, err := tr.Mode(ino)
	require.NoError(t, err)
	require.Equal(t, uint32(0o100644), mode)

	uid, gid, err := tr.Owner(ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1000), uid)
	require.Equal(t, uint32(1000), gid)

	chunks, err := tr.Chunks(ino)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, uint32(7), chunks[0].Size)

	require.Equal(t, 4, tr.InodeCount())
}

func TestDecodeResolvesExtendedHoleLength(t *testing.T) {
	const bigHole = uint64(1) << 40

	spec := testutil.MetadataSpec{
		Names: [][]byte{[]byte("zeros.bin")},
		Directories: []metadata.Directory{
			{FirstEntry: 0, ParentIdx: 0},
		},
		Entries: []metadata.DirEntry{
			{NameIndex: 0, InodeIndex: 1},
		},
		Inodes: []metadata.InodeData{
			{ModeIndex: 0, OwnerIndex: 0, GroupIndex: 0},
			{ModeIndex: 1, OwnerIndex: 0, GroupIndex: 0, ChunkBegin: 0, ChunkEnd: 1},
		},
		Modes:  []uint32{0o040755, 0o100644},
		Owners: []uint32{0},
		Groups: []uint32{0},
		Chunks: []metadata.Chunk{
			{Block: 0, Offset: metadata.ExtendedHoleOffset, Size: 0},
		},
		ExtendedHoles: []uint64{bigHole},
		TimeResSec:    1,
	}

	payload := testutil.EncodeMetadataV2(spec)
	tr, err := metadata.Decode(payload, false)
	require.NoError(t, err)

	chunks, err := tr.Chunks(1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.True(t, chunks[0].IsHole())
	require.Equal(t, bigHole, chunks[0].Length())
}

func TestDecodeTruncatedPayloadErrors(t *testing.T) {
	spec := testutil.MetadataSpec{
		Directories: []metadata.Directory{{FirstEntry: 0, ParentIdx: 0}},
		Inodes:      []metadata.InodeData{{}},
		Modes:       []uint32{0o040755},
		Owners:      []uint32{0},
		Groups:      []uint32{0},
		TimeResSec:  1,
	}
	payload := testutil.EncodeMetadataV2(spec)
	_, err := metadata.Decode(payload[:len(payload)-4], false)
	require.Error(t, err)
}
