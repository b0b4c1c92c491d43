package replication

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// Optional metadata tags, MySQL 8.0+ / MariaDB 10.5+, per spec §4.6.
const (
	TABLE_MAP_OPT_META_SIGNEDNESS                    byte = 1
	TABLE_MAP_OPT_META_DEFAULT_CHARSET               byte = 2
	TABLE_MAP_OPT_META_COLUMN_CHARSET                byte = 3
	TABLE_MAP_OPT_META_COLUMN_NAME                   byte = 4
	TABLE_MAP_OPT_META_SET_STR_VALUE                 byte = 5
	TABLE_MAP_OPT_META_ENUM_STR_VALUE                byte = 6
	TABLE_MAP_OPT_META_GEOMETRY_TYPE                 byte = 7
	TABLE_MAP_OPT_META_SIMPLE_PRIMARY_KEY             byte = 8
	TABLE_MAP_OPT_META_PRIMARY_KEY_WITH_PREFIX        byte = 9
	TABLE_MAP_OPT_META_ENUM_AND_SET_DEFAULT_CHARSET   byte = 10
	TABLE_MAP_OPT_META_ENUM_AND_SET_COLUMN_CHARSET    byte = 11
)

// DefaultCharset pairs a fallback collation with exceptions keyed by column index, the
// shape shared by tags 2/10.
type DefaultCharset struct {
	Default uint64
	Charset map[uint64]uint64
}

// PrimaryKey records a primary key column index and, for tag 9, a key-prefix length (0
// meaning the whole column participates).
type PrimaryKey struct {
	ColumnIndex uint64
	PrefixLen   uint64
}

// TableMapEvent describes the schema of a table as seen by the row events that follow it,
// per spec §4.6.
type TableMapEvent struct {
	flavor string

	TableID uint64

	Flags uint16

	Schema []byte
	Table  []byte

	ColumnCount uint64
	ColumnType  []byte
	ColumnMeta  []uint16

	// NullBitmap has ⌈ColumnCount/8⌉ bytes, one bit per column: 1 means the column is
	// nullable.
	NullBitmap []byte

	// optional metadata, populated only when present on the wire.
	signednessBitmap        []byte
	defaultCharset          *DefaultCharset
	columnCharset           []uint64
	columnName              [][]byte
	enumSetDefaultCharset   *DefaultCharset
	enumSetColumnCharset    []uint64
	enumStrValue            [][][]byte
	setStrValue             [][][]byte
	geometryType            []uint64
	simplePrimaryKey        []uint64
	primaryKeyPrefix        []PrimaryKey

	// optionalMetaLength is the number of optional-metadata bytes seen, only used by tests.
	optionalMetaLength int
}

func (e *TableMapEvent) Decode(data []byte) error {
	pos := 0
	e.TableID = mysql.FixedLengthInt(data[0:6])
	pos += 6

	e.Flags = binary.LittleEndian.Uint16(data[pos:])
	pos += 2

	schema, _, n, err := mysql.LengthEncodedString(data[pos:])
	if err != nil {
		return errors.Trace(err)
	}
	e.Schema = schema
	pos += n
	pos++ // 0x00 terminator

	table, _, n, err := mysql.LengthEncodedString(data[pos:])
	if err != nil {
		return errors.Trace(err)
	}
	e.Table = table
	pos += n
	pos++

	cc, _, n := mysql.LengthEncodedInt(data[pos:])
	e.ColumnCount = cc
	pos += n

	if len(data) < pos+int(e.ColumnCount) {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	e.ColumnType = data[pos : pos+int(e.ColumnCount)]
	pos += int(e.ColumnCount)

	columnMetaData, _, n, err := mysql.LengthEncodedString(data[pos:])
	if err != nil {
		return errors.Trace(err)
	}
	pos += n

	if err = e.decodeMeta(columnMetaData); err != nil {
		return errors.Trace(err)
	}

	nullBitmapSize := bitmapByteSize(int(e.ColumnCount))
	if len(data) < pos+nullBitmapSize {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	e.NullBitmap = data[pos : pos+nullBitmapSize]
	pos += nullBitmapSize

	if pos < len(data) {
		if err := e.decodeOptionalMeta(data[pos:]); err != nil {
			return errors.Trace(err)
		}
		e.optionalMetaLength = len(data) - pos
	}

	return nil
}

func bitmapByteSize(columns int) int {
	return (columns + 7) / 8
}

// decodeMeta interprets the per-column metadata blob, whose layout depends on each column's
// declared type: see spec §4.5 "decodeValue dispatches by column type".
func (e *TableMapEvent) decodeMeta(data []byte) error {
	pos := 0
	e.ColumnMeta = make([]uint16, e.ColumnCount)

	for i, t := range e.ColumnType {
		switch t {
		case mysql.MYSQL_TYPE_STRING:
			if pos+2 > len(data) {
				return errors.Trace(mysql.ErrMalformedEvent)
			}
			x := uint16(data[pos]) << 8 // real_type
			x += uint16(data[pos+1])    // pack or field length
			e.ColumnMeta[i] = x
			pos += 2
		case mysql.MYSQL_TYPE_NEWDECIMAL:
			if pos+2 > len(data) {
				return errors.Trace(mysql.ErrMalformedEvent)
			}
			x := uint16(data[pos]) << 8 // precision
			x += uint16(data[pos+1])    // decimals
			e.ColumnMeta[i] = x
			pos += 2
		case mysql.MYSQL_TYPE_VAR_STRING,
			mysql.MYSQL_TYPE_VARCHAR,
			mysql.MYSQL_TYPE_BIT:
			if pos+2 > len(data) {
				return errors.Trace(mysql.ErrMalformedEvent)
			}
			e.ColumnMeta[i] = binary.LittleEndian.Uint16(data[pos:])
			pos += 2
		case mysql.MYSQL_TYPE_BLOB,
			mysql.MYSQL_TYPE_DOUBLE,
			mysql.MYSQL_TYPE_FLOAT,
			mysql.MYSQL_TYPE_GEOMETRY,
			mysql.MYSQL_TYPE_JSON:
			if pos+1 > len(data) {
				return errors.Trace(mysql.ErrMalformedEvent)
			}
			e.ColumnMeta[i] = uint16(data[pos])
			pos++
		case mysql.MYSQL_TYPE_TIME2,
			mysql.MYSQL_TYPE_DATETIME2,
			mysql.MYSQL_TYPE_TIMESTAMP2:
			if pos+1 > len(data) {
				return errors.Trace(mysql.ErrMalformedEvent)
			}
			e.ColumnMeta[i] = uint16(data[pos])
			pos++
		case mysql.MYSQL_TYPE_NEWDATE,
			mysql.MYSQL_TYPE_ENUM,
			mysql.MYSQL_TYPE_SET,
			mysql.MYSQL_TYPE_TINY_BLOB,
			mysql.MYSQL_TYPE_MEDIUM_BLOB,
			mysql.MYSQL_TYPE_LONG_BLOB:
			return errors.Errorf("unsupported table map column type %d", t)
		default:
			e.ColumnMeta[i] = 0
		}
	}

	return nil
}

func (e *TableMapEvent) decodeOptionalMeta(data []byte) error {
	pos := 0
	for pos < len(data) {
		tag := data[pos]
		pos++

		length, _, n, err := mysql.LengthEncodedString(data[pos:])
		if err != nil {
			return errors.Trace(err)
		}
		pos += n

		switch tag {
		case TABLE_MAP_OPT_META_SIGNEDNESS:
			e.signednessBitmap = length
		case TABLE_MAP_OPT_META_DEFAULT_CHARSET:
			dc, err := decodeDefaultCharset(length)
			if err != nil {
				return err
			}
			e.defaultCharset = dc
		case TABLE_MAP_OPT_META_COLUMN_CHARSET:
			cs, err := decodeDenseLEI(length)
			if err != nil {
				return err
			}
			e.columnCharset = cs
		case TABLE_MAP_OPT_META_COLUMN_NAME:
			names, err := decodeLengthPrefixedStrings(length)
			if err != nil {
				return err
			}
			e.columnName = names
		case TABLE_MAP_OPT_META_SET_STR_VALUE:
			v, err := decodeTypeValues(length)
			if err != nil {
				return err
			}
			e.setStrValue = v
		case TABLE_MAP_OPT_META_ENUM_STR_VALUE:
			v, err := decodeTypeValues(length)
			if err != nil {
				return err
			}
			e.enumStrValue = v
		case TABLE_MAP_OPT_META_GEOMETRY_TYPE:
			gt, err := decodeDenseLEI(length)
			if err != nil {
				return err
			}
			e.geometryType = gt
		case TABLE_MAP_OPT_META_SIMPLE_PRIMARY_KEY:
			pk, err := decodeDenseLEI(length)
			if err != nil {
				return err
			}
			e.simplePrimaryKey = pk
		case TABLE_MAP_OPT_META_PRIMARY_KEY_WITH_PREFIX:
			pk, err := decodePrimaryKeyPrefix(length)
			if err != nil {
				return err
			}
			e.primaryKeyPrefix = pk
		case TABLE_MAP_OPT_META_ENUM_AND_SET_DEFAULT_CHARSET:
			dc, err := decodeDefaultCharset(length)
			if err != nil {
				return err
			}
			e.enumSetDefaultCharset = dc
		case TABLE_MAP_OPT_META_ENUM_AND_SET_COLUMN_CHARSET:
			cs, err := decodeDenseLEI(length)
			if err != nil {
				return err
			}
			e.enumSetColumnCharset = cs
		}
	}

	return nil
}

func decodeDefaultCharset(data []byte) (*DefaultCharset, error) {
	dc := &DefaultCharset{Charset: make(map[uint64]uint64)}
	pos := 0

	def, _, n := mysql.LengthEncodedInt(data[pos:])
	dc.Default = def
	pos += n

	for pos < len(data) {
		colIdx, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n
		collation, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n
		dc.Charset[colIdx] = collation
	}
	return dc, nil
}

func decodeDenseLEI(data []byte) ([]uint64, error) {
	var out []uint64
	pos := 0
	for pos < len(data) {
		v, _, n := mysql.LengthEncodedInt(data[pos:])
		if n == 0 {
			return nil, errors.Trace(mysql.ErrMalformedEvent)
		}
		out = append(out, v)
		pos += n
	}
	return out, nil
}

func decodeLengthPrefixedStrings(data []byte) ([][]byte, error) {
	var out [][]byte
	pos := 0
	for pos < len(data) {
		s, _, n, err := mysql.LengthEncodedString(data[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		pos += n
	}
	return out, nil
}

func decodeTypeValues(data []byte) ([][][]byte, error) {
	var out [][][]byte
	pos := 0
	for pos < len(data) {
		n, _, nn := mysql.LengthEncodedInt(data[pos:])
		pos += nn
		values := make([][]byte, 0, n)
		for i := uint64(0); i < n; i++ {
			s, _, sn, err := mysql.LengthEncodedString(data[pos:])
			if err != nil {
				return nil, err
			}
			values = append(values, s)
			pos += sn
		}
		out = append(out, values)
	}
	return out, nil
}

func decodePrimaryKeyPrefix(data []byte) ([]PrimaryKey, error) {
	var out []PrimaryKey
	pos := 0
	for pos < len(data) {
		idx, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n
		prefix, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n
		out = append(out, PrimaryKey{ColumnIndex: idx, PrefixLen: prefix})
	}
	return out, nil
}

// isCharacterColumn reports whether a column counts toward DEFAULT_CHARSET/COLUMN_CHARSET
// indexing. MariaDB counts JSON and geometry as character columns; MySQL does not.
func (e *TableMapEvent) isCharacterColumn(t byte) bool {
	switch t {
	case mysql.MYSQL_TYPE_STRING, mysql.MYSQL_TYPE_VAR_STRING, mysql.MYSQL_TYPE_VARCHAR,
		mysql.MYSQL_TYPE_BLOB:
		return true
	case mysql.MYSQL_TYPE_JSON, mysql.MYSQL_TYPE_GEOMETRY:
		return e.flavor == "mariadb"
	default:
		return false
	}
}

func (e *TableMapEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "TableID: %d\n", e.TableID)
	fmt.Fprintf(w, "Flags: %d\n", e.Flags)
	fmt.Fprintf(w, "Schema: %s\n", e.Schema)
	fmt.Fprintf(w, "Table: %s\n", e.Table)
	fmt.Fprintf(w, "Column count: %d\n", e.ColumnCount)
	fmt.Fprintf(w, "Column type: \n%s", dumpHex(e.ColumnType))
	fmt.Fprintf(w, "NULL bitmap: \n%s", dumpHex(e.NullBitmap))
	fmt.Fprintln(w)
}

func dumpHex(b []byte) string {
	return fmt.Sprintf("% x\n", b)
}
