package testutil

import (
	"encoding/binary"

	"github.com/mhx/dwarfs-sub004/internal/packedint"
	"github.com/mhx/dwarfs-sub004/metadata"
)

// MetadataSpec mirrors metadata.Config as a plain description to encode
// into a MetadataV2 section payload — the structural inverse of
// metadata.Decode.
type MetadataSpec struct {
	Names         [][]byte
	Symlinks      [][]byte
	Directories   []metadata.Directory
	Entries       []metadata.DirEntry
	Inodes        []metadata.InodeData
	Modes         []uint32
	Owners        []uint32
	Groups        []uint32
	Chunks        []metadata.Chunk
	ExtendedHoles []uint64

	Timebase       int64
	TimeResSec     uint32
	NsecMultiplier uint32
	MtimeOnly      bool
}

func putU32(buf *[]byte, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	*buf = append(*buf, b[:]...)
}

func putU64(buf *[]byte, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	*buf = append(*buf, b[:]...)
}

// putStringTable writes count length-prefixed entries. This encoder
// never emits FSST-compressed output — metadata.FSSTDecoder's doc
// comment explains there's no portable FSST encoder to pair it with —
// so the matching dictionary-length header field is always 0.
func putStringTable(buf *[]byte, entries [][]byte) {
	for _, e := range entries {
		putU32(buf, uint32(len(e)))
		*buf = append(*buf, e...)
	}
}

// EncodeMetadataV2 serializes spec into the plain little-endian byte
// layout metadata.Decode expects (see that function's doc comment for
// the field order).
func EncodeMetadataV2(spec MetadataSpec) []byte {
	var buf []byte

	mtimeOnlyByte := byte(0)
	if spec.MtimeOnly {
		mtimeOnlyByte = 1
	}
	buf = append(buf, mtimeOnlyByte)
	putU32(&buf, spec.TimeResSec)
	putU32(&buf, spec.NsecMultiplier)
	putU64(&buf, uint64(spec.Timebase))

	putU32(&buf, uint32(len(spec.Names)))
	putU32(&buf, 0) // names FSST dictionary length
	putU32(&buf, uint32(len(spec.Symlinks)))
	putU32(&buf, 0) // symlinks FSST dictionary length
	putU32(&buf, uint32(len(spec.Directories)))
	putU32(&buf, uint32(len(spec.Entries)))
	putU32(&buf, uint32(len(spec.Inodes)))
	putU32(&buf, uint32(len(spec.Modes)))
	putU32(&buf, uint32(len(spec.Owners)))
	putU32(&buf, uint32(len(spec.Groups)))
	putU32(&buf, uint32(len(spec.Chunks)))
	putU32(&buf, uint32(len(spec.ExtendedHoles)))

	modeVals := make([]uint64, len(spec.Inodes))
	ownerVals := make([]uint64, len(spec.Inodes))
	groupVals := make([]uint64, len(spec.Inodes))
	var maxMode, maxOwner, maxGroup uint64
	for i, in := range spec.Inodes {
		modeVals[i] = uint64(in.ModeIndex)
		ownerVals[i] = uint64(in.OwnerIndex)
		groupVals[i] = uint64(in.GroupIndex)
		if modeVals[i] > maxMode {
			maxMode = modeVals[i]
		}
		if ownerVals[i] > maxOwner {
			maxOwner = ownerVals[i]
		}
		if groupVals[i] > maxGroup {
			maxGroup = groupVals[i]
		}
	}
	modeBW := packedint.BitWidth(maxMode)
	ownerBW := packedint.BitWidth(maxOwner)
	groupBW := packedint.BitWidth(maxGroup)
	putU32(&buf, uint32(modeBW))
	putU32(&buf, uint32(ownerBW))
	putU32(&buf, uint32(groupBW))

	putStringTable(&buf, spec.Names)
	putStringTable(&buf, spec.Symlinks)

	for _, d := range spec.Directories {
		putU32(&buf, d.FirstEntry)
		putU32(&buf, d.ParentIdx)
	}
	for _, e := range spec.Entries {
		putU32(&buf, e.NameIndex)
		putU32(&buf, e.InodeIndex)
	}

	buf = append(buf, packedint.Pack(modeVals, modeBW)...)
	buf = append(buf, packedint.Pack(ownerVals, ownerBW)...)
	buf = append(buf, packedint.Pack(groupVals, groupBW)...)

	for _, in := range spec.Inodes {
		putU64(&buf, uint64(in.MTimeOffset))
		putU64(&buf, uint64(in.ATimeOffset))
		putU64(&buf, uint64(in.CTimeOffset))
		putU32(&buf, in.ChunkBegin)
		putU32(&buf, in.ChunkEnd)
	}

	for _, m := range spec.Modes {
		putU32(&buf, m)
	}
	for _, o := range spec.Owners {
		putU32(&buf, o)
	}
	for _, g := range spec.Groups {
		putU32(&buf, g)
	}

	for _, ch := range spec.Chunks {
		putU32(&buf, ch.Block)
		putU32(&buf, ch.Offset)
		putU32(&buf, ch.Size)
	}
	for _, h := range spec.ExtendedHoles {
		putU64(&buf, h)
	}

	return buf
}
