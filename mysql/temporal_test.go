package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFracBytesForFSP(t *testing.T) {
	cases := map[int]int{0: 0, 1: 0, 2: 1, 3: 1, 4: 2, 5: 2, 6: 3}
	for fsp, want := range cases {
		require.Equal(t, want, fracBytesForFSP(fsp), "fsp=%d", fsp)
	}
}

func TestDecodeTimestamp2Zero(t *testing.T) {
	v, n, err := DecodeTimestamp2([]byte{0x00, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "0000-00-00 00:00:00", v)
}

func TestDecodeTimestamp2(t *testing.T) {
	// 1577836800 = 2020-01-01 00:00:00 UTC
	v, n, err := DecodeTimestamp2([]byte{0x5E, 0x0B, 0xE1, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "2020-01-01 00:00:00", v)
}

func TestDecodeDatetime2Zero(t *testing.T) {
	v, n, err := DecodeDatetime2([]byte{0x80, 0x00, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "0000-00-00 00:00:00", v)
}

func TestDecodeDatetime2(t *testing.T) {
	v, n, err := DecodeDatetime2([]byte{0x80, 0x70, 0x40, 0x00, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "0001-01-01 00:00:00", v)
}

func TestDecodeTime2Positive(t *testing.T) {
	v, n, err := DecodeTime2([]byte{0x80, 0x10, 0x83}, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "01:02:03", v)
}

func TestDecodeTime2ShortBuffer(t *testing.T) {
	_, _, err := DecodeTime2([]byte{0x80, 0x10}, 0)
	require.Error(t, err)
}
