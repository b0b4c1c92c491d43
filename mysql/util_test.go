package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 0xffff, 0x10000, 0xffffff, 0x1000000, 0xffffffffffffffff}
	for _, v := range cases {
		encoded := PutLengthEncodedInt(v)
		got, isNull, n := LengthEncodedInt(encoded)
		require.False(t, isNull)
		require.Equal(t, v, got)
		require.Equal(t, len(encoded), n)
	}
}

func TestLengthEncodedIntNull(t *testing.T) {
	_, isNull, n := LengthEncodedInt([]byte{0xfb})
	require.True(t, isNull)
	require.Equal(t, 1, n)
}

func TestLengthEncodedStringRoundTrip(t *testing.T) {
	encoded := PutLengthEncodedString([]byte("hello"))
	got, isNull, n, err := LengthEncodedString(encoded)
	require.NoError(t, err)
	require.False(t, isNull)
	require.Equal(t, "hello", string(got))
	require.Equal(t, len(encoded), n)
}

func TestLengthEncodedStringTruncated(t *testing.T) {
	_, _, _, err := LengthEncodedString([]byte{5, 'h', 'i'})
	require.Error(t, err)
}

func TestFixedLengthInt(t *testing.T) {
	require.Equal(t, uint64(0x030201), FixedLengthInt([]byte{0x01, 0x02, 0x03}))
}

func TestBFixedLengthInt(t *testing.T) {
	require.Equal(t, uint64(0x010203), BFixedLengthInt([]byte{0x01, 0x02, 0x03}))
}
