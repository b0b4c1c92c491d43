package mysql

import (
	"math"
	"strconv"
)

// RowData is one still-encoded row packet from a text-protocol resultset.
type RowData []byte

// Parse decodes a row packet into dst, reusing its backing array when it has enough
// capacity. Only the text protocol is supported: the query executor never issues
// prepared statements, so no row it reads is ever binary-encoded.
func (r RowData) Parse(fields []*Field, isBinary bool, dst []FieldValue) ([]FieldValue, error) {
	if isBinary {
		return nil, ErrMalformPacket
	}

	if cap(dst) >= len(fields) {
		dst = dst[:len(fields)]
	} else {
		dst = make([]FieldValue, len(fields))
	}

	pos := 0
	for i := range fields {
		if pos >= len(r) {
			return nil, ErrMalformPacket
		}
		if r[pos] == 0xfb {
			dst[i] = FieldValue{Type: FieldValueTypeNull}
			pos++
			continue
		}

		s, isNull, n, err := LengthEncodedString(r[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if isNull {
			dst[i] = FieldValue{Type: FieldValueTypeNull}
			continue
		}

		dst[i] = fieldValueFromText(fields[i], s)
	}

	return dst, nil
}

// fieldValueFromText classifies a text-protocol column value by the field's declared
// MySQL type, storing integers/floats compactly rather than keeping everything as text.
func fieldValueFromText(f *Field, s []byte) FieldValue {
	switch f.Type {
	case MYSQL_TYPE_TINY, MYSQL_TYPE_SHORT, MYSQL_TYPE_INT24, MYSQL_TYPE_LONG, MYSQL_TYPE_LONGLONG, MYSQL_TYPE_YEAR:
		if f.Flag&UNSIGNED_FLAG != 0 {
			if v, err := strconv.ParseUint(string(s), 10, 64); err == nil {
				return FieldValue{Type: FieldValueTypeUnsigned, value: v}
			}
		} else if v, err := strconv.ParseInt(string(s), 10, 64); err == nil {
			return FieldValue{Type: FieldValueTypeSigned, value: uint64(v)}
		}
	case MYSQL_TYPE_FLOAT, MYSQL_TYPE_DOUBLE:
		if v, err := strconv.ParseFloat(string(s), 64); err == nil {
			return FieldValue{Type: FieldValueTypeFloat, value: math.Float64bits(v)}
		}
	}
	return FieldValue{Type: FieldValueTypeString, str: s}
}
