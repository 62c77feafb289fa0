package metadata

import "time"

// TimeResolution converts the compact (timebase + per-inode offset)
// timestamp encoding used by frozen metadata into wall-clock times,
// folding in the configurable resolution that lets an image trade
// timestamp precision for a smaller timebase field.
//
// The default resolution is one second: an offset of 1 advances the wall
// clock by one second from the image's timebase. Finer-grained images
// instead record a sub-second multiplier in nanoseconds, and images
// produced with --time-resolution-sec N record N directly. An image
// built with --with-mtime-only deduplicates by reporting mtime for all
// three of atime/mtime/ctime.
type TimeResolution struct {
	timebase      int64
	resolutionSec uint32
	nsecMult      uint32
	mtimeOnly     bool
}

// NewTimeResolution builds a handler from the metadata options recorded
// alongside timebase. A resolutionSec of 0 falls back to one-second
// resolution, matching the format's "unset means 1" convention.
func NewTimeResolution(timebase int64, resolutionSec, nsecMult uint32, mtimeOnly bool) TimeResolution {
	if resolutionSec == 0 {
		resolutionSec = 1
	}
	return TimeResolution{
		timebase:      timebase,
		resolutionSec: resolutionSec,
		nsecMult:      nsecMult,
		mtimeOnly:     mtimeOnly,
	}
}

// Resolve expands an inode's mtime/atime/ctime offsets (each relative to
// the timebase, in units of resolutionSec) into time.Time values.
func (h TimeResolution) Resolve(mtimeOffset, atimeOffset, ctimeOffset int64) (mtime, atime, ctime time.Time) {
	mtime = h.expand(mtimeOffset)
	if h.mtimeOnly {
		return mtime, mtime, mtime
	}
	return mtime, h.expand(atimeOffset), h.expand(ctimeOffset)
}

func (h TimeResolution) expand(offset int64) time.Time {
	secs := int64(h.resolutionSec) * (h.timebase + offset)
	return time.Unix(secs, 0).UTC()
}

// NanosecondMultiplier reports the sub-second resolution multiplier, or
// 0 if the image only records whole-second resolution.
func (h TimeResolution) NanosecondMultiplier() uint32 { return h.nsecMult }
