package replication

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newJSONRowsEvent() *RowsEvent {
	return &RowsEvent{}
}

func TestDecodeJsonBinaryLiteralTrue(t *testing.T) {
	e := newJSONRowsEvent()
	data := []byte{JSONB_LITERAL, JSONB_TRUE_LITERAL}

	out, err := e.decodeJsonBinary(data)
	require.NoError(t, err)
	require.JSONEq(t, "true", string(out))
}

func TestDecodeJsonBinaryLiteralNull(t *testing.T) {
	e := newJSONRowsEvent()
	data := []byte{JSONB_LITERAL, JSONB_NULL_LITERAL}

	out, err := e.decodeJsonBinary(data)
	require.NoError(t, err)
	require.JSONEq(t, "null", string(out))
}

func TestDecodeJsonBinaryString(t *testing.T) {
	e := newJSONRowsEvent()
	data := []byte{JSONB_STRING, 0x02, 'h', 'i'}

	out, err := e.decodeJsonBinary(data)
	require.NoError(t, err)
	require.JSONEq(t, `"hi"`, string(out))
}

func TestDecodeJsonBinarySmallObject(t *testing.T) {
	e := newJSONRowsEvent()

	doc := []byte{
		1, 0, // count = 1
		12, 0, // size = 12
		11, 0, // key offset = 11
		1, 0, // key length = 1
		JSONB_INT16, // value type
		1, 0,        // inline int16 value = 1
		'a', // key bytes
	}
	data := append([]byte{JSONB_SMALL_OBJECT}, doc...)

	out, err := e.decodeJsonBinary(data)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(out))
}

func TestDecodeJsonBinarySmallArray(t *testing.T) {
	e := newJSONRowsEvent()

	doc := []byte{
		3, 0, // count = 3
		13, 0, // size = 13
		JSONB_INT16, 1, 0,
		JSONB_INT16, 2, 0,
		JSONB_INT16, 3, 0,
	}
	data := append([]byte{JSONB_SMALL_ARRAY}, doc...)

	out, err := e.decodeJsonBinary(data)
	require.NoError(t, err)
	require.JSONEq(t, `[1,2,3]`, string(out))
}

func TestDecodeJsonBinaryInvalidType(t *testing.T) {
	e := newJSONRowsEvent()
	data := []byte{0xFE, 0x00}

	_, err := e.decodeJsonBinary(data)
	require.Error(t, err)
}

func TestJsonDiffOperationString(t *testing.T) {
	require.Equal(t, "Replace", JsonDiffOperationReplace.String())
	require.Equal(t, "Insert", JsonDiffOperationInsert.String())
	require.Equal(t, "Remove", JsonDiffOperationRemove.String())
}

func TestFloatWithTrailingZeroMarshalJSON(t *testing.T) {
	b, err := FloatWithTrailingZero(2.0).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "2.0", string(b))

	b, err = FloatWithTrailingZero(2.5).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "2.5", string(b))
}
