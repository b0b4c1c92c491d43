package mysql

import (
	"encoding/binary"
	"math"
)

// Field describes one column of a text-protocol resultset, the wire shape sent in
// response to the query executor's minimal SHOW/SELECT support.
type Field struct {
	Schema   []byte
	Table    []byte
	OrgTable []byte
	Name     []byte
	OrgName  []byte

	Charset      uint16
	ColumnLength uint32
	Type         byte
	Flag         uint16
	Decimal      uint8
}

// Parse decodes one column-definition packet (the classic 41-protocol shape: catalog,
// schema, table, org_table, name, org_name, fixed-length fields block).
func (f *Field) Parse(data []byte) error {
	pos := 0

	// catalog, always "def", ignored
	_, _, n, err := LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	f.Schema, _, n, err = LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	f.Table, _, n, err = LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	f.OrgTable, _, n, err = LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	f.Name, _, n, err = LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	f.OrgName, _, n, err = LengthEncodedString(data[pos:])
	if err != nil {
		return err
	}
	pos += n

	// skip the length-encoded-int "fixed fields length" byte (always 0x0c)
	pos++

	f.Charset = binary.LittleEndian.Uint16(data[pos:])
	pos += 2

	f.ColumnLength = binary.LittleEndian.Uint32(data[pos:])
	pos += 4

	f.Type = data[pos]
	pos++

	f.Flag = binary.LittleEndian.Uint16(data[pos:])
	pos += 2

	f.Decimal = data[pos]

	return nil
}

// FieldValueType discriminates how a decoded column value is stored in FieldValue.
type FieldValueType uint8

const (
	FieldValueTypeNull FieldValueType = iota
	FieldValueTypeUnsigned
	FieldValueTypeSigned
	FieldValueTypeFloat
	FieldValueTypeString
)

// FieldValue holds one decoded row/column value without allocating an interface{} for
// numeric types.
type FieldValue struct {
	Type  FieldValueType
	value uint64
	str   []byte
}

// NewStringFieldValue builds a FieldValue holding a raw string/bytes value; used by
// QueryExecutor implementations that decode rows themselves (e.g. SQLExecutor adapting
// a database/sql result) rather than going through RowData.Parse.
func NewStringFieldValue(b []byte) FieldValue {
	return FieldValue{Type: FieldValueTypeString, str: b}
}

func (f *FieldValue) AsUint64() uint64 {
	return f.value
}

func (f *FieldValue) AsInt64() int64 {
	return int64(f.value)
}

func (f *FieldValue) AsFloat64() float64 {
	return math.Float64frombits(f.value)
}

func (f *FieldValue) AsString() []byte {
	return f.str
}

// Value returns the field as a plain interface{}, convenient for callers that don't
// care about allocation.
func (f *FieldValue) Value() interface{} {
	switch f.Type {
	case FieldValueTypeUnsigned:
		return f.AsUint64()
	case FieldValueTypeSigned:
		return f.AsInt64()
	case FieldValueTypeFloat:
		return f.AsFloat64()
	case FieldValueTypeString:
		return f.AsString()
	default:
		return nil
	}
}
