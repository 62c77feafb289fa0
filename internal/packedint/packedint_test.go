package packedint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackRoundTrip(t *testing.T) {
	for _, width := range []uint{1, 3, 7, 8, 13, 32} {
		values := []uint64{0, 1, (1 << width) - 1, (1 << (width - 1))}
		if width == 1 {
			values = []uint64{0, 1, 1, 0}
		}
		data := Pack(values, width)
		arr, err := NewArray(data, width, len(values))
		require.NoError(t, err)
		require.Equal(t, len(values), arr.Len())
		for i, v := range values {
			require.Equalf(t, v, arr.Get(i), "width=%d index=%d", width, i)
		}
	}
}

func TestNewArrayRejectsBadWidth(t *testing.T) {
	_, err := NewArray(nil, 0, 0)
	require.Error(t, err)
	_, err = NewArray(nil, 65, 0)
	require.Error(t, err)
}

func TestNewArrayRejectsShortBuffer(t *testing.T) {
	_, err := NewArray([]byte{0}, 32, 4)
	require.Error(t, err)
}

func TestBitWidth(t *testing.T) {
	require.Equal(t, uint(1), BitWidth(0))
	require.Equal(t, uint(1), BitWidth(1))
	require.Equal(t, uint(2), BitWidth(2))
	require.Equal(t, uint(8), BitWidth(255))
	require.Equal(t, uint(9), BitWidth(256))
}

func TestUnpackCrossesByteBoundaries(t *testing.T) {
	// 5 values of 5 bits each: packing does not align to byte boundaries.
	values := []uint64{31, 0, 17, 9, 3}
	data := Pack(values, 5)
	arr, err := NewArray(data, 5, len(values))
	require.NoError(t, err)
	for i, v := range values {
		require.Equal(t, v, arr.Get(i))
	}
}
