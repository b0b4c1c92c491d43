package replication

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// RowsEventStmtEndFlag etc. are declared in consts.go.

// TableMapCache resolves a tableId to the TableMapEvent that described it, per spec §4.5.
// BinlogParser's own cache satisfies this; it is pulled out as an interface so RowsEvent can
// be unit tested without a full parser.
type TableMapCache interface {
	Get(tableID uint64) (*TableMapEvent, bool)
}

// RowsEvent decodes WRITE/UPDATE/DELETE row events across wire versions 0/1/2, per spec
// §4.5.
type RowsEvent struct {
	// Version is 0, 1, or 2, selected by the caller from the event type code.
	Version int

	tableIDSize int
	tables      TableMapCache
	needBitmap2 bool

	eventType EventType

	Table *TableMapEvent

	TableID uint64
	Flags   uint16

	// ExtraData carries the v2 extra row-data block verbatim.
	ExtraData []byte

	ColumnCount uint64

	// ColumnBitmap1 marks present columns in "before" images (all versions).
	ColumnBitmap1 []byte

	// ColumnBitmap2 marks present columns in "after" images (UPDATE only).
	ColumnBitmap2 []byte

	// Rows holds one []interface{} per decoded image; UPDATE rows alternate
	// before/after, so Rows[0] is the first before-image, Rows[1] its after-image, etc.
	Rows [][]interface{}

	// SkippedColumns records, per row image, the column indexes whose image bitmap bit
	// was 0 (absent from the row event's own bitmap, e.g. an unchanged column in a
	// partial UPDATE).
	SkippedColumns [][]int

	useDecimal              bool
	useFloatWithTrailingZero bool
	ignoreJSONDecodeErr     bool
	parseTime              bool
}

func (e *RowsEvent) Decode(data []byte) error {
	pos := 0
	e.TableID = mysql.FixedLengthInt(data[0:e.tableIDSize])
	pos += e.tableIDSize

	e.Flags = binary.LittleEndian.Uint16(data[pos:])
	pos += 2

	if e.Version == 2 {
		dataLen := binary.LittleEndian.Uint16(data[pos:])
		if dataLen < 2 {
			return errors.Trace(mysql.ErrMalformedEvent)
		}
		e.ExtraData = data[pos+2 : pos+int(dataLen)]
		pos += int(dataLen)
	}

	var n int
	e.ColumnCount, _, n = mysql.LengthEncodedInt(data[pos:])
	pos += n

	bitmapSize := bitmapByteSize(int(e.ColumnCount))
	if len(data) < pos+bitmapSize {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	e.ColumnBitmap1 = data[pos : pos+bitmapSize]
	pos += bitmapSize

	if e.needBitmap2 {
		if len(data) < pos+bitmapSize {
			return errors.Trace(mysql.ErrMalformedEvent)
		}
		e.ColumnBitmap2 = data[pos : pos+bitmapSize]
		pos += bitmapSize
	}

	table, ok := e.tables.Get(e.TableID)
	if !ok {
		return errors.Trace(mysql.ErrMissingTableMap)
	}
	e.Table = table

	var err error
	for pos < len(data) {
		if pos, err = e.decodeImage(data, pos, e.ColumnBitmap1, false); err != nil {
			return errors.Trace(err)
		}

		if e.needBitmap2 {
			if pos, err = e.decodeImage(data, pos, e.ColumnBitmap2, true); err != nil {
				return errors.Trace(err)
			}
		}
	}

	return nil
}

// decodeImage decodes one row image (the "before" image for WRITE/DELETE, or one of the two
// images that make up an UPDATE pair), per spec §4.5. isAfterImage distinguishes an UPDATE's
// second image, which alone may carry the partial-JSON-update binlogRowValueOptions field.
func (e *RowsEvent) decodeImage(data []byte, pos int, bitmap []byte, isAfterImage bool) (int, error) {
	row := make([]interface{}, e.ColumnCount)
	var skipped []int

	var rowValueOptions uint64
	partialJSONBitmap := []byte(nil)

	isAfterImageOfPartialUpdate := e.eventType == PARTIAL_UPDATE_ROWS_EVENT && isAfterImage
	if isAfterImageOfPartialUpdate {
		v, _, n := mysql.LengthEncodedInt(data[pos:])
		rowValueOptions = v
		pos += n

		if rowValueOptions&0x01 != 0 {
			jsonColumnCount := 0
			for i := 0; i < int(e.ColumnCount); i++ {
				if e.Table.ColumnType[i] == mysql.MYSQL_TYPE_JSON {
					jsonColumnCount++
				}
			}
			partialBitmapSize := bitmapByteSize(jsonColumnCount)
			if len(data) < pos+partialBitmapSize {
				return 0, errors.Trace(mysql.ErrMalformedEvent)
			}
			partialJSONBitmap = data[pos : pos+partialBitmapSize]
			pos += partialBitmapSize
		}
	}

	present := 0
	for i := 0; i < int(e.ColumnCount); i++ {
		if isBitSet(bitmap, i) {
			present++
		}
	}
	nullBitmapSize := bitmapByteSize(present)
	if len(data) < pos+nullBitmapSize {
		return 0, errors.Trace(mysql.ErrMalformedEvent)
	}
	nullBitmap := data[pos : pos+nullBitmapSize]
	pos += nullBitmapSize

	nullIndex := 0
	jsonColumnIndex := 0
	for i := 0; i < int(e.ColumnCount); i++ {
		if !isBitSet(bitmap, i) {
			skipped = append(skipped, i)
			continue
		}

		isJSON := e.Table.ColumnType[i] == mysql.MYSQL_TYPE_JSON
		partial := false
		if isJSON {
			if partialJSONBitmap != nil && isBitSet(partialJSONBitmap, jsonColumnIndex) {
				partial = true
			}
			jsonColumnIndex++
		}

		if isBitSet(nullBitmap, nullIndex) {
			row[i] = nil
			nullIndex++
			continue
		}
		nullIndex++

		value, n, err := e.decodeValue(data[pos:], e.Table.ColumnType[i], e.Table.ColumnMeta[i], partial)
		if err != nil {
			return 0, errors.Trace(err)
		}
		row[i] = value
		pos += n
	}

	e.Rows = append(e.Rows, row)
	e.SkippedColumns = append(e.SkippedColumns, skipped)

	return pos, nil
}

func isBitSet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<(uint(i)%8)) > 0
}

// decodeValue dispatches on column type, consuming columnMeta-driven width, per spec §4.5.
func (e *RowsEvent) decodeValue(data []byte, columnType byte, meta uint16, partialJSON bool) (interface{}, int, error) {
	var length int

	if columnType == mysql.MYSQL_TYPE_STRING {
		if meta >= 256 {
			b0 := byte(meta >> 8)
			b1 := byte(meta & 0xFF)
			if b0&0x30 != 0x30 {
				length = int(b1) | (int(b0&0x30) << 4)
				columnType = b0 | 0x30
			} else {
				length = int(b1)
				switch b0 {
				case mysql.MYSQL_TYPE_ENUM, mysql.MYSQL_TYPE_SET, mysql.MYSQL_TYPE_STRING:
					columnType = b0
				}
			}
		} else {
			length = int(meta)
		}
	}

	switch columnType {
	case mysql.MYSQL_TYPE_NULL:
		return nil, 0, nil

	case mysql.MYSQL_TYPE_TINY:
		return int64(int8(data[0])), 1, nil

	case mysql.MYSQL_TYPE_SHORT:
		return int64(mysql.ParseBinaryInt16(data)), 2, nil

	case mysql.MYSQL_TYPE_INT24:
		return int64(mysql.ParseBinaryInt24(data)), 3, nil

	case mysql.MYSQL_TYPE_LONG:
		return int64(mysql.ParseBinaryInt32(data)), 4, nil

	case mysql.MYSQL_TYPE_LONGLONG:
		return mysql.ParseBinaryInt64(data), 8, nil

	case mysql.MYSQL_TYPE_NEWDECIMAL:
		precision := int(meta >> 8)
		scale := int(meta & 0xFF)
		v, n, err := decodeDecimalValue(data, precision, scale, e.useDecimal)
		return v, n, err

	case mysql.MYSQL_TYPE_FLOAT:
		v := mysql.ParseBinaryFloat32(data)
		if e.useFloatWithTrailingZero {
			s := strconv.FormatFloat(float64(v), 'f', -1, 32)
			return s, 4, nil
		}
		return float64(v), 4, nil

	case mysql.MYSQL_TYPE_DOUBLE:
		v := mysql.ParseBinaryFloat64(data)
		if e.useFloatWithTrailingZero {
			s := strconv.FormatFloat(v, 'f', -1, 64)
			return s, 8, nil
		}
		return v, 8, nil

	case mysql.MYSQL_TYPE_BIT:
		nbits := ((meta >> 8) * 8) + (meta & 0xFF)
		nbytes := int((nbits + 7) / 8)
		v := mysql.BFixedLengthInt(data[:nbytes])
		return int64(v), nbytes, nil

	case mysql.MYSQL_TYPE_TIMESTAMP:
		sec := binary.LittleEndian.Uint32(data)
		if sec == 0 {
			return "0000-00-00 00:00:00", 4, nil
		}
		t := secondsToCivil(int64(sec))
		return formatDatetime(t, 0, 0), 4, nil

	case mysql.MYSQL_TYPE_TIMESTAMP2:
		s, n, err := decodeTimestamp2Value(data, int(meta))
		return s, n, err

	case mysql.MYSQL_TYPE_DATETIME2:
		s, n, err := decodeDatetime2Value(data, int(meta))
		return s, n, err

	case mysql.MYSQL_TYPE_TIME2:
		s, n, err := decodeTime2Value(data, int(meta))
		return s, n, err

	case mysql.MYSQL_TYPE_DATE, mysql.MYSQL_TYPE_NEWDATE:
		return decodeDateValue(data)

	case mysql.MYSQL_TYPE_YEAR:
		y := int(data[0])
		if y == 0 {
			return int64(0), 1, nil
		}
		return int64(y + 1900), 1, nil

	case mysql.MYSQL_TYPE_ENUM:
		l := int(meta & 0xFF)
		switch l {
		case 1:
			return int64(data[0]), 1, nil
		case 2:
			return int64(mysql.ParseBinaryUint16(data)), 2, nil
		default:
			return nil, 0, errors.Errorf("unknown ENUM packlen %d", l)
		}

	case mysql.MYSQL_TYPE_SET:
		nbytes := int(meta & 0xFF)
		v := mysql.FixedLengthInt(data[:nbytes])
		return int64(v), nbytes, nil

	case mysql.MYSQL_TYPE_BLOB, mysql.MYSQL_TYPE_TINY_BLOB, mysql.MYSQL_TYPE_MEDIUM_BLOB,
		mysql.MYSQL_TYPE_LONG_BLOB:
		return decodeBlobValue(data, int(meta))

	case mysql.MYSQL_TYPE_JSON:
		n, nbytes := readLengthByWidth(data, int(meta))
		body := data[nbytes : nbytes+int(n)]
		v, err := e.decodeJSONColumn(body, partialJSON)
		if err != nil {
			return nil, 0, err
		}
		return v, nbytes + int(n), nil

	case mysql.MYSQL_TYPE_GEOMETRY:
		return decodeBlobValue(data, int(meta))

	case mysql.MYSQL_TYPE_VARCHAR, mysql.MYSQL_TYPE_VAR_STRING:
		length = int(meta)
		return decodeStringValue(data, length)

	case mysql.MYSQL_TYPE_STRING:
		return decodeStringValue(data, length)

	default:
		return nil, 0, errors.Errorf("unsupported column type %d", columnType)
	}
}

func readLengthByWidth(data []byte, width int) (uint64, int) {
	switch width {
	case 1:
		return uint64(data[0]), 1
	case 2:
		return uint64(mysql.ParseBinaryUint16(data)), 2
	case 3:
		return uint64(mysql.ParseBinaryUint24(data)), 3
	case 4:
		return uint64(mysql.ParseBinaryUint32(data)), 4
	default:
		return 0, 0
	}
}

func decodeBlobValue(data []byte, meta int) (interface{}, int, error) {
	length, nbytes := readLengthByWidth(data, meta)
	if nbytes == 0 {
		return nil, 0, errors.Errorf("invalid blob packlen %d", meta)
	}
	return append([]byte(nil), data[nbytes:nbytes+int(length)]...), nbytes + int(length), nil
}

func decodeStringValue(data []byte, length int) (interface{}, int, error) {
	if length < 256 {
		l := int(data[0])
		return string(data[1 : 1+l]), 1 + l, nil
	}
	l := int(mysql.ParseBinaryUint16(data))
	return string(data[2 : 2+l]), 2 + l, nil
}

func decodeDecimalValue(data []byte, precision, scale int, useDecimal bool) (interface{}, int, error) {
	return mysql.DecodeDecimal(data, precision, scale, useDecimal)
}

func decodeTimestamp2Value(data []byte, fsp int) (interface{}, int, error) {
	return mysql.DecodeTimestamp2(data, fsp)
}

func decodeDatetime2Value(data []byte, fsp int) (interface{}, int, error) {
	return mysql.DecodeDatetime2(data, fsp)
}

func decodeTime2Value(data []byte, fsp int) (interface{}, int, error) {
	return mysql.DecodeTime2(data, fsp)
}

func decodeDateValue(data []byte) (interface{}, int, error) {
	v := uint32(mysql.FixedLengthInt(data[0:3]))
	if v == 0 {
		return "0000-00-00", 3, nil
	}
	day := int(v & 0x1F)
	month := int((v >> 5) & 0x0F)
	year := int(v >> 9)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), 3, nil
}

// decodeJSONColumn renders a JSON column's binary encoding: a full document via
// decodeJsonBinary (its own goccy/go-json marshal round trip), or, for a partial UPDATE
// after-image column, the sequence of JsonDiff edits via decodeJsonPartialDiffs.
func (e *RowsEvent) decodeJSONColumn(data []byte, partial bool) (interface{}, error) {
	if partial {
		diffs, err := e.decodeJsonPartialDiffs(data)
		if err != nil {
			if e.ignoreJSONDecodeErr {
				return nil, nil
			}
			return nil, err
		}
		return diffs, nil
	}

	v, err := e.decodeJsonBinary(data)
	if err != nil {
		if e.ignoreJSONDecodeErr {
			return nil, nil
		}
		return nil, err
	}
	return string(v), nil
}

// decodeJsonPartialDiffs splits a partial-update JSON column's value into the sequence of
// JsonDiff edits MySQL packs back to back, each parsed by the teacher's own
// decodeJsonPartialBinary.
func (e *RowsEvent) decodeJsonPartialDiffs(data []byte) ([]JsonDiff, error) {
	var diffs []JsonDiff
	pos := 0

	for pos < len(data) {
		start := pos
		op := JsonDiffOperation(data[pos])
		switch op {
		case JsonDiffOperationReplace, JsonDiffOperationInsert, JsonDiffOperationRemove:
		default:
			return nil, ErrCorruptedJSONDiff
		}
		pos++

		pathLen, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n
		pos += int(pathLen)

		if op != JsonDiffOperationRemove {
			valueLen, _, n := mysql.LengthEncodedInt(data[pos:])
			pos += n
			pos += int(valueLen)
		}

		diff, err := e.decodeJsonPartialBinary(data[start:pos])
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, *diff)
	}

	return diffs, nil
}

func (e *RowsEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "TableID: %d\n", e.TableID)
	fmt.Fprintf(w, "Flags: %d\n", e.Flags)
	fmt.Fprintf(w, "Column count: %d\n", e.ColumnCount)

	for _, rows := range e.Rows {
		fmt.Fprintf(w, "%v\n", rows)
	}
	fmt.Fprintln(w)
}
