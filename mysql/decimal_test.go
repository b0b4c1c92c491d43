package mysql

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecodeDecimalPositive(t *testing.T) {
	// "12.34" packed as precision=4, scale=2: integral byte 12 with the sign bit set,
	// fractional byte 34 unchanged.
	data := []byte{0x8C, 0x22}
	v, n, err := DecodeDecimal(data, 4, 2, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "12.34", v)
}

func TestDecodeDecimalNegative(t *testing.T) {
	// "-12.34": sign bit clear, remaining bytes 1's-complemented.
	data := []byte{0x73, 0xDD}
	v, n, err := DecodeDecimal(data, 4, 2, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "-12.34", v)
}

func TestDecodeDecimalZero(t *testing.T) {
	data := []byte{0x80, 0x00}
	v, _, err := DecodeDecimal(data, 4, 2, false)
	require.NoError(t, err)
	require.Equal(t, "0.00", v)
}

func TestDecodeDecimalNoScale(t *testing.T) {
	data := []byte{0x80, 0x7B}
	v, n, err := DecodeDecimal(data, 3, 0, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "123", v)
}

func TestDecodeDecimalUseDecimalType(t *testing.T) {
	data := []byte{0x8C, 0x22}
	v, _, err := DecodeDecimal(data, 4, 2, true)
	require.NoError(t, err)

	d, ok := v.(decimal.Decimal)
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("12.34").Equal(d))
}

func TestDecodeDecimalShortBuffer(t *testing.T) {
	_, _, err := DecodeDecimal([]byte{0x80}, 4, 2, false)
	require.Error(t, err)
}
