package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaycore/mysql-binlog/mysql"
)

func lenPrefixedString(s string) []byte {
	return append(mysql.PutLengthEncodedInt(uint64(len(s))), []byte(s)...)
}

func TestTableMapEventDecode(t *testing.T) {
	var body []byte

	tableID := uint64(0x010203)
	idBytes := []byte{byte(tableID), byte(tableID >> 8), byte(tableID >> 16), 0, 0, 0}
	body = append(body, idBytes...)
	body = append(body, le16(0)...) // Flags

	body = append(body, lenPrefixedString("testdb")...)
	body = append(body, 0) // schema name terminator

	body = append(body, lenPrefixedString("users")...)
	body = append(body, 0) // table name terminator

	body = append(body, mysql.PutLengthEncodedInt(2)...) // column count

	body = append(body, mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_VARCHAR)

	meta := []byte{0x00, 0x20} // VARCHAR length meta, little-endian
	body = append(body, lenPrefixedString(string(meta))...)

	body = append(body, 0x00) // null bitmap, 2 columns -> 1 byte, none nullable

	e := &TableMapEvent{}
	require.NoError(t, e.Decode(body))

	require.Equal(t, tableID, e.TableID)
	require.Equal(t, "testdb", string(e.Schema))
	require.Equal(t, "users", string(e.Table))
	require.Equal(t, uint64(2), e.ColumnCount)
	require.Equal(t, []byte{mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_VARCHAR}, e.ColumnType)
	require.Equal(t, uint16(0x2000), e.ColumnMeta[1])
	require.Equal(t, uint16(0), e.ColumnMeta[0])
}

func TestBitmapByteSize(t *testing.T) {
	require.Equal(t, 0, bitmapByteSize(0))
	require.Equal(t, 1, bitmapByteSize(1))
	require.Equal(t, 1, bitmapByteSize(8))
	require.Equal(t, 2, bitmapByteSize(9))
}
