package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeResolutionDefaultsToOneSecond(t *testing.T) {
	tr := NewTimeResolution(1_000_000, 0, 0, false)
	mtime, atime, ctime := tr.Resolve(10, 20, 30)
	require.Equal(t, int64(1_000_010), mtime.Unix())
	require.Equal(t, int64(1_000_020), atime.Unix())
	require.Equal(t, int64(1_000_030), ctime.Unix())
	require.Equal(t, uint32(0), tr.NanosecondMultiplier())
}

func TestTimeResolutionScalesOffsets(t *testing.T) {
	tr := NewTimeResolution(0, 60, 0, false)
	mtime, _, _ := tr.Resolve(2, 0, 0)
	require.Equal(t, int64(120), mtime.Unix())
}

func TestTimeResolutionMTimeOnlyCollapses(t *testing.T) {
	tr := NewTimeResolution(0, 1, 0, true)
	mtime, atime, ctime := tr.Resolve(5, 99, 123)
	require.Equal(t, mtime, atime)
	require.Equal(t, mtime, ctime)
	require.Equal(t, int64(5), mtime.Unix())
}

func TestTimeResolutionNanosecondMultiplierPassthrough(t *testing.T) {
	tr := NewTimeResolution(0, 1, 1000, false)
	require.Equal(t, uint32(1000), tr.NanosecondMultiplier())
}
