package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringTablePlain(t *testing.T) {
	st := NewStringTable([][]byte{[]byte("usr"), []byte("lib")})
	require.Equal(t, 2, st.Len())
	require.Equal(t, "usr", st.Get(0))
	require.Equal(t, "lib", st.Get(1))
}

func TestStringTableOutOfRangeReturnsEmpty(t *testing.T) {
	st := NewStringTable([][]byte{[]byte("usr")})
	require.Equal(t, "", st.Get(5))
}

func TestNewFSSTStringTable(t *testing.T) {
	dict := buildDictionary("usr", "lib")
	st, err := NewFSSTStringTable(dict, [][]byte{{0}, {1}, {0, 1}})
	require.NoError(t, err)
	require.Equal(t, 3, st.Len())
	require.Equal(t, "usr", st.Get(0))
	require.Equal(t, "lib", st.Get(1))
	require.Equal(t, "usrlib", st.Get(2))
}

func TestNewFSSTStringTablePropagatesError(t *testing.T) {
	_, err := NewFSSTStringTable([]byte{5, 'a'}, nil)
	require.Error(t, err)
}
