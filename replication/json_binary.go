package replication

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
	"github.com/relaycore/mysql-binlog/utils"
)

// JSONB type tags, see mysql-server/sql/json_binary.h.
const (
	JSONB_SMALL_OBJECT byte = iota
	JSONB_LARGE_OBJECT
	JSONB_SMALL_ARRAY
	JSONB_LARGE_ARRAY
	JSONB_LITERAL
	JSONB_INT16
	JSONB_UINT16
	JSONB_INT32
	JSONB_UINT32
	JSONB_INT64
	JSONB_UINT64
	JSONB_DOUBLE
	JSONB_STRING
	JSONB_OPAQUE byte = 0x0f
)

const (
	JSONB_NULL_LITERAL  byte = 0x00
	JSONB_TRUE_LITERAL  byte = 0x01
	JSONB_FALSE_LITERAL byte = 0x02
)

// jsonbSmallOffsetSize/jsonbLargeOffsetSize are the width of an object/array's internal
// offsets: 2 bytes for a "small" document (under 64KB), 4 bytes otherwise.
const (
	jsonbSmallOffsetSize = 2
	jsonbLargeOffsetSize = 4

	jsonbKeyEntrySizeSmall = 2 + jsonbSmallOffsetSize
	jsonbKeyEntrySizeLarge = 2 + jsonbLargeOffsetSize

	jsonbValueEntrySizeSmall = 1 + jsonbSmallOffsetSize
	jsonbValueEntrySizeLarge = 1 + jsonbLargeOffsetSize
)

// ErrCorruptedJSONDiff mirrors server error ER_CORRUPTED_JSON_DIFF: a partial JSON update
// record whose operation byte isn't one of replace/insert/remove.
var ErrCorruptedJSONDiff = fmt.Errorf("corrupted JSON diff")

// JsonDiffOperation identifies what a JsonDiff record changed, per
// https://github.com/mysql/mysql-server/blob/8.0/sql/json_diff.h.
type JsonDiffOperation byte

const (
	// JsonDiffOperationReplace overwrites the value at Path, as JSON_REPLACE would.
	JsonDiffOperationReplace = JsonDiffOperation(iota)
	// JsonDiffOperationInsert adds a new array element or object member at Path.
	JsonDiffOperationInsert
	// JsonDiffOperationRemove deletes the array element or object member at Path.
	JsonDiffOperationRemove
)

func (op JsonDiffOperation) String() string {
	switch op {
	case JsonDiffOperationReplace:
		return "Replace"
	case JsonDiffOperationInsert:
		return "Insert"
	case JsonDiffOperationRemove:
		return "Remove"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// JsonDiff is one partial update to a JSON column, as carried by a PARTIAL_UPDATE_ROWS
// event instead of the column's full new value.
type JsonDiff struct {
	Op    JsonDiffOperation
	Path  string
	Value string
}

func (jd *JsonDiff) String() string {
	return fmt.Sprintf("json_diff(op:%s path:%s value:%s)", jd.Op, jd.Path, jd.Value)
}

// FloatWithTrailingZero marshals like a normal float64 except that a value with no
// fractional part keeps one decimal digit ("2.0" rather than "2"), matching how the
// MySQL JSON type prints a DOUBLE.
type FloatWithTrailingZero float64

func (f FloatWithTrailingZero) MarshalJSON() ([]byte, error) {
	if float64(f) == float64(int(f)) {
		return []byte(strconv.FormatFloat(float64(f), 'f', 1, 64)), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

func jsonbOffsetSize(small bool) int {
	if small {
		return jsonbSmallOffsetSize
	}
	return jsonbLargeOffsetSize
}

func jsonbKeyEntrySize(small bool) int {
	if small {
		return jsonbKeyEntrySizeSmall
	}
	return jsonbKeyEntrySizeLarge
}

func jsonbValueEntrySize(small bool) int {
	if small {
		return jsonbValueEntrySizeSmall
	}
	return jsonbValueEntrySizeLarge
}

// decodeJsonBinary turns a JSONB column value (MySQL's internal binary JSON encoding)
// into the equivalent standard JSON text.
func (e *RowsEvent) decodeJsonBinary(data []byte) ([]byte, error) {
	dec := jsonBinaryDecoder{
		useDecimal:               e.useDecimal,
		useFloatWithTrailingZero: e.useFloatWithTrailingZero,
		ignoreDecodeErr:          e.ignoreJSONDecodeErr,
	}

	if dec.tooShort(data, 1) {
		return nil, dec.err
	}

	val := dec.decodeValue(data[0], data[1:])
	if dec.err != nil {
		return nil, dec.err
	}

	return json.Marshal(val)
}

// jsonBinaryDecoder walks a JSONB buffer. err is sticky: once set, every decode method
// becomes a no-op that returns a zero value, so a deeply nested decodeValue chain doesn't
// need an error check after every recursive call.
type jsonBinaryDecoder struct {
	useDecimal               bool
	useFloatWithTrailingZero bool
	ignoreDecodeErr          bool
	err                      error
}

func (d *jsonBinaryDecoder) decodeValue(tp byte, data []byte) interface{} {
	if d.err != nil {
		return nil
	}

	switch tp {
	case JSONB_SMALL_OBJECT:
		return d.decodeObjectOrArray(data, true, true)
	case JSONB_LARGE_OBJECT:
		return d.decodeObjectOrArray(data, false, true)
	case JSONB_SMALL_ARRAY:
		return d.decodeObjectOrArray(data, true, false)
	case JSONB_LARGE_ARRAY:
		return d.decodeObjectOrArray(data, false, false)
	case JSONB_LITERAL:
		return d.decodeLiteral(data)
	case JSONB_INT16:
		return d.decodeInt16(data)
	case JSONB_UINT16:
		return d.decodeUint16(data)
	case JSONB_INT32:
		return d.decodeInt32(data)
	case JSONB_UINT32:
		return d.decodeUint32(data)
	case JSONB_INT64:
		return d.decodeInt64(data)
	case JSONB_UINT64:
		return d.decodeUint64(data)
	case JSONB_DOUBLE:
		if d.useFloatWithTrailingZero {
			return d.decodeDoubleWithTrailingZero(data)
		}
		return d.decodeDouble(data)
	case JSONB_STRING:
		return d.decodeString(data)
	case JSONB_OPAQUE:
		return d.decodeOpaque(data)
	default:
		d.err = errors.Errorf("invalid json type %d", tp)
		return nil
	}
}

// decodeObjectOrArray parses the shared object/array layout: a count, a byte size, a
// key-entry table (objects only), then a value-entry table. Each value entry either
// embeds a small inline value directly or points at an offset further into data.
func (d *jsonBinaryDecoder) decodeObjectOrArray(data []byte, small, isObject bool) interface{} {
	offsetSize := jsonbOffsetSize(small)
	if d.tooShort(data, 2*offsetSize) {
		return nil
	}

	count := d.decodeCount(data, small)
	size := d.decodeCount(data[offsetSize:], small)

	if d.tooShort(data, size) {
		// MySQL bug #88791: generated columns before 5.7.22 can carry a JSONB value
		// whose declared size doesn't match its buffer. It's never the replicated
		// value itself, so callers that opt in via ignoreDecodeErr get a nil instead
		// of a hard failure.
		if d.ignoreDecodeErr {
			d.err = nil
		}
		return nil
	}

	keyEntrySize := jsonbKeyEntrySize(small)
	valueEntrySize := jsonbValueEntrySize(small)

	headerSize := 2*offsetSize + count*valueEntrySize
	if isObject {
		headerSize += count * keyEntrySize
	}
	if headerSize > size {
		d.err = errors.Errorf("header size %d > size %d", headerSize, size)
		return nil
	}

	var keys []string
	if isObject {
		keys = make([]string, count)
		for i := 0; i < count; i++ {
			entryOffset := 2*offsetSize + keyEntrySize*i
			keyOffset := d.decodeCount(data[entryOffset:], small)
			keyLength := int(d.decodeUint16(data[entryOffset+offsetSize:]))

			if keyOffset < headerSize {
				d.err = errors.Errorf("invalid key offset %d, must > %d", keyOffset, headerSize)
				return nil
			}
			if d.tooShort(data, keyOffset+keyLength) {
				return nil
			}

			keys[i] = utils.ByteSliceToString(data[keyOffset : keyOffset+keyLength])
		}
	}
	if d.err != nil {
		return nil
	}

	values := make([]interface{}, count)
	for i := 0; i < count; i++ {
		entryOffset := 2*offsetSize + valueEntrySize*i
		if isObject {
			entryOffset += keyEntrySize * count
		}

		tp := data[entryOffset]
		if isInlineValue(tp, small) {
			values[i] = d.decodeValue(tp, data[entryOffset+1:entryOffset+valueEntrySize])
			continue
		}

		valueOffset := d.decodeCount(data[entryOffset+1:], small)
		if d.tooShort(data, valueOffset) {
			return nil
		}
		values[i] = d.decodeValue(tp, data[valueOffset:])
	}
	if d.err != nil {
		return nil
	}

	if !isObject {
		return values
	}

	obj := make(map[string]interface{}, count)
	for i := 0; i < count; i++ {
		obj[keys[i]] = values[i]
	}
	return obj
}

// isInlineValue reports whether a value entry of type tp stores its value directly in
// the entry rather than as an offset elsewhere in the document. INT32/UINT32 are inline
// only in a large document, where the entry has room for the full 4 bytes.
func isInlineValue(tp byte, small bool) bool {
	switch tp {
	case JSONB_INT16, JSONB_UINT16, JSONB_LITERAL:
		return true
	case JSONB_INT32, JSONB_UINT32:
		return !small
	default:
		return false
	}
}

func (d *jsonBinaryDecoder) decodeLiteral(data []byte) interface{} {
	if d.tooShort(data, 1) {
		return nil
	}

	switch data[0] {
	case JSONB_NULL_LITERAL:
		return nil
	case JSONB_TRUE_LITERAL:
		return true
	case JSONB_FALSE_LITERAL:
		return false
	default:
		d.err = errors.Errorf("invalid literal %c", data[0])
		return nil
	}
}

// tooShort reports whether data has fewer than need bytes, latching d.err if so. A
// decoder already in an error state is treated as "too short" unconditionally, which is
// what lets callers skip an error check after every nested decode.
func (d *jsonBinaryDecoder) tooShort(data []byte, need int) bool {
	if d.err != nil {
		return true
	}
	if len(data) < need {
		d.err = errors.Errorf("data len %d < expected %d", len(data), need)
	}
	return d.err != nil
}

func (d *jsonBinaryDecoder) decodeInt16(data []byte) int16 {
	if d.tooShort(data, 2) {
		return 0
	}
	return mysql.ParseBinaryInt16(data[0:2])
}

func (d *jsonBinaryDecoder) decodeUint16(data []byte) uint16 {
	if d.tooShort(data, 2) {
		return 0
	}
	return mysql.ParseBinaryUint16(data[0:2])
}

func (d *jsonBinaryDecoder) decodeInt32(data []byte) int32 {
	if d.tooShort(data, 4) {
		return 0
	}
	return mysql.ParseBinaryInt32(data[0:4])
}

func (d *jsonBinaryDecoder) decodeUint32(data []byte) uint32 {
	if d.tooShort(data, 4) {
		return 0
	}
	return mysql.ParseBinaryUint32(data[0:4])
}

func (d *jsonBinaryDecoder) decodeInt64(data []byte) int64 {
	if d.tooShort(data, 8) {
		return 0
	}
	return mysql.ParseBinaryInt64(data[0:8])
}

func (d *jsonBinaryDecoder) decodeUint64(data []byte) uint64 {
	if d.tooShort(data, 8) {
		return 0
	}
	return mysql.ParseBinaryUint64(data[0:8])
}

func (d *jsonBinaryDecoder) decodeDouble(data []byte) float64 {
	if d.tooShort(data, 8) {
		return 0
	}
	return mysql.ParseBinaryFloat64(data[0:8])
}

func (d *jsonBinaryDecoder) decodeDoubleWithTrailingZero(data []byte) FloatWithTrailingZero {
	return FloatWithTrailingZero(d.decodeDouble(data))
}

func (d *jsonBinaryDecoder) decodeString(data []byte) string {
	if d.err != nil {
		return ""
	}

	length, n := d.decodeVariableLength(data)
	if d.tooShort(data, length+n) {
		return ""
	}

	return utils.ByteSliceToString(data[n : n+length])
}

func (d *jsonBinaryDecoder) decodeOpaque(data []byte) interface{} {
	if d.tooShort(data, 1) {
		return nil
	}

	tp := data[0]
	data = data[1:]

	length, n := d.decodeVariableLength(data)
	if d.tooShort(data, length+n) {
		return nil
	}
	data = data[n : n+length]

	switch tp {
	case mysql.MYSQL_TYPE_NEWDECIMAL:
		return d.decodeDecimal(data)
	case mysql.MYSQL_TYPE_TIME:
		return d.decodeTime(data)
	case mysql.MYSQL_TYPE_DATE, mysql.MYSQL_TYPE_DATETIME, mysql.MYSQL_TYPE_TIMESTAMP:
		return d.decodeDateTime(data)
	default:
		return utils.ByteSliceToString(data)
	}
}

func (d *jsonBinaryDecoder) decodeDecimal(data []byte) interface{} {
	precision := int(data[0])
	scale := int(data[1])

	v, _, err := mysql.DecodeDecimal(data[2:], precision, scale, d.useDecimal)
	d.err = err
	return v
}

// decodeTime renders MySQL's packed TIME encoding as "[-]HH:MM:SS.ffffff".
func (d *jsonBinaryDecoder) decodeTime(data []byte) interface{} {
	v := d.decodeInt64(data)
	if v == 0 {
		return "00:00:00"
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	intPart := v >> 24
	hour := (intPart >> 12) % (1 << 10)
	minute := (intPart >> 6) % (1 << 6)
	second := intPart % (1 << 6)
	frac := v % (1 << 24)

	return fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, hour, minute, second, frac)
}

// decodeDateTime renders MySQL's packed DATETIME/TIMESTAMP encoding as
// "YYYY-MM-DD HH:MM:SS.ffffff". The server never stores a negative datetime, but the
// value is folded to positive defensively since this decodes untrusted wire bytes.
func (d *jsonBinaryDecoder) decodeDateTime(data []byte) interface{} {
	v := d.decodeInt64(data)
	if v == 0 {
		return "0000-00-00 00:00:00"
	}
	if v < 0 {
		v = -v
	}

	intPart := v >> 24
	ymd := intPart >> 17
	ym := ymd >> 5
	hms := intPart % (1 << 17)

	year := ym / 13
	month := ym % 13
	day := ymd % (1 << 5)
	hour := hms >> 12
	minute := (hms >> 6) % (1 << 6)
	second := hms % (1 << 6)
	frac := v % (1 << 24)

	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d", year, month, day, hour, minute, second, frac)
}

func (d *jsonBinaryDecoder) decodeCount(data []byte, small bool) int {
	if small {
		return int(d.decodeUint16(data))
	}
	return int(d.decodeUint32(data))
}

// decodeVariableLength reads a base-128 varint (up to 5 bytes, since a JSONB length
// never exceeds math.MaxUint32) and returns its value and encoded width.
func (d *jsonBinaryDecoder) decodeVariableLength(data []byte) (length int, width int) {
	const maxBytes = 5

	limit := maxBytes
	if len(data) < limit {
		limit = len(data)
	}

	var accum uint64
	for width = 0; width < limit; width++ {
		b := data[width]
		accum |= uint64(b&0x7F) << uint(7*width)

		if b&0x80 == 0 {
			if accum > math.MaxUint32 {
				d.err = errors.Errorf("variable length %d must <= %d", accum, int64(math.MaxUint32))
				return 0, 0
			}
			return int(accum), width + 1
		}
	}

	d.err = errors.New("decode variable length failed")
	return 0, 0
}

// decodeJsonPartialBinary parses one entry of a PARTIAL_UPDATE_ROWS event's diff vector.
// See Json_diff_vector::read_binary() in mysql-server/sql/json_diff.cc.
func (e *RowsEvent) decodeJsonPartialBinary(data []byte) (*JsonDiff, error) {
	op := JsonDiffOperation(data[0])
	switch op {
	case JsonDiffOperationReplace, JsonDiffOperationInsert, JsonDiffOperationRemove:
	default:
		return nil, ErrCorruptedJSONDiff
	}
	data = data[1:]

	pathLength, _, n := mysql.LengthEncodedInt(data)
	data = data[n:]

	path := data[:pathLength]
	data = data[pathLength:]

	diff := &JsonDiff{Op: op, Path: string(path)}
	if op == JsonDiffOperationRemove {
		return diff, nil
	}

	valueLength, _, n := mysql.LengthEncodedInt(data)
	data = data[n:]

	value, err := e.decodeJsonBinary(data[:valueLength])
	if err != nil {
		return nil, fmt.Errorf("cannot read json diff for field %q: %w", path, err)
	}
	diff.Value = string(value)

	return diff, nil
}
