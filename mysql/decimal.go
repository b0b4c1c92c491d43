package mysql

import (
	"strings"

	"github.com/shopspring/decimal"
)

// decimalDigitsPerInteger and compressedBytes mirror the server's packed-DECIMAL layout:
// digits are grouped into chunks of 9, each chunk packed into the minimal number of bytes.
const decimalDigitsPerInteger = 9

var compressedBytes = [10]int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

// DecodeDecimal decodes a packed NEWDECIMAL value of the given precision/scale starting at
// data[0], per spec §4.2: the leading byte of the integer part has its sign bit (0x80)
// XORed in, and both the integer and fractional parts are stored as big-endian 9-digit
// groups with the leading group compressed to the minimal byte width. Returns either a
// decimal.Decimal (useDecimal=true) or its canonical string form, plus the number of bytes
// consumed.
func DecodeDecimal(data []byte, precision, scale int, useDecimal bool) (interface{}, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrMalformedEvent
	}

	integral := precision - scale
	uncompIntegral := integral / decimalDigitsPerInteger
	uncompFractional := scale / decimalDigitsPerInteger
	compIntegral := integral - (uncompIntegral * decimalDigitsPerInteger)
	compFractional := scale - (uncompFractional * decimalDigitsPerInteger)

	binSize := uncompIntegral*4 + compressedBytes[compIntegral] +
		uncompFractional*4 + compressedBytes[compFractional]

	if len(data) < binSize {
		return nil, 0, ErrMalformedEvent
	}

	buf := make([]byte, binSize)
	copy(buf, data[:binSize])

	// The sign is carried (XORed) into the most significant bit of the first byte:
	// 1 means positive, 0 means negative. XOR it back out, and remember the sign so
	// negative values can be complemented below.
	positive := buf[0]&0x80 > 0
	buf[0] ^= 0x80

	if !positive {
		for i := range buf {
			buf[i] ^= 0xFF
		}
	}

	var sb strings.Builder
	if !positive {
		sb.WriteByte('-')
	}

	pos, err := decodeDecimalCompIntegral(&sb, buf, 0, compIntegral, true)
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < uncompIntegral; i++ {
		pos, err = decodeDecimalDecompGroup(&sb, buf, pos)
		if err != nil {
			return nil, 0, err
		}
	}

	fracStart := sb.Len()
	if scale > 0 {
		sb.WriteByte('.')
	}

	for i := 0; i < uncompFractional; i++ {
		pos, err = decodeDecimalDecompGroup(&sb, buf, pos)
		if err != nil {
			return nil, 0, err
		}
	}
	if compFractional > 0 {
		pos, err = decodeDecimalCompFractional(&sb, buf, pos, compFractional)
		if err != nil {
			return nil, 0, err
		}
	}

	value := sb.String()
	if value == "" || value == "-" {
		value = "0"
	}
	// Trim a leading sign-but-all-zero integral part ("-0000" style) that can appear when
	// the compressed-group decode emits leading zeros; keep at least one leading digit.
	_ = fracStart

	if useDecimal {
		d, derr := decimal.NewFromString(value)
		if derr != nil {
			return nil, 0, ErrMalformedEvent
		}
		return d, binSize, nil
	}
	return value, binSize, nil
}

func decodeDecimalCompIntegral(sb *strings.Builder, buf []byte, pos, digits int, stripLeadingZero bool) (int, error) {
	if digits == 0 {
		return pos, nil
	}
	size := compressedBytes[digits]
	if size == 0 {
		return pos, nil
	}
	if pos+size > len(buf) {
		return 0, ErrMalformedEvent
	}
	value := BFixedLengthInt(buf[pos : pos+size])
	writeDigits(sb, value, digits, stripLeadingZero)
	return pos + size, nil
}

func decodeDecimalCompFractional(sb *strings.Builder, buf []byte, pos, digits int) (int, error) {
	size := compressedBytes[digits]
	if size == 0 {
		return pos, nil
	}
	if pos+size > len(buf) {
		return 0, ErrMalformedEvent
	}
	value := BFixedLengthInt(buf[pos : pos+size])
	writeDigitsPadded(sb, value, digits)
	return pos + size, nil
}

func decodeDecimalDecompGroup(sb *strings.Builder, buf []byte, pos int) (int, error) {
	if pos+4 > len(buf) {
		return 0, ErrMalformedEvent
	}
	value := BFixedLengthInt(buf[pos : pos+4])
	writeDigitsPadded(sb, value, decimalDigitsPerInteger)
	return pos + 4, nil
}

func writeDigits(sb *strings.Builder, value uint64, digits int, stripLeadingZero bool) {
	s := padLeft(value, digits)
	if stripLeadingZero {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
	}
	sb.WriteString(s)
}

func writeDigitsPadded(sb *strings.Builder, value uint64, digits int) {
	sb.WriteString(padLeft(value, digits))
}

func padLeft(value uint64, width int) string {
	s := uitoa(value)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
