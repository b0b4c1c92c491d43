package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaycore/mysql-binlog/mysql"
)

type stubTableMapCache struct {
	tables map[uint64]*TableMapEvent
}

func (c *stubTableMapCache) Get(tableID uint64) (*TableMapEvent, bool) {
	t, ok := c.tables[tableID]
	return t, ok
}

func TestRowsEventDecodeWriteV2(t *testing.T) {
	table := &TableMapEvent{
		TableID:     1,
		ColumnType:  []byte{mysql.MYSQL_TYPE_LONG, mysql.MYSQL_TYPE_VARCHAR},
		ColumnMeta:  []uint16{0, 20},
		ColumnCount: 2,
	}
	cache := &stubTableMapCache{tables: map[uint64]*TableMapEvent{1: table}}

	e := &RowsEvent{
		Version:     2,
		tableIDSize: 6,
		tables:      cache,
		needBitmap2: false,
		eventType:   WRITE_ROWS_EVENTv2,
	}

	data := []byte{
		1, 0, 0, 0, 0, 0, // table id
		0, 0, // flags
		2, 0, // v2 extra-data length (includes itself, no payload)
		2,    // column count
		0x03, // column bitmap1, both columns present
		0x00, // null bitmap, no nulls
		42, 0, 0, 0, // LONG column value
		2, 'h', 'i', // VARCHAR: length byte + "hi"
	}

	require.NoError(t, e.Decode(data))
	require.Len(t, e.Rows, 1)
	require.Equal(t, int64(42), e.Rows[0][0])
	require.Equal(t, "hi", e.Rows[0][1])
	require.Empty(t, e.SkippedColumns[0])
}

func TestRowsEventDecodeMissingTableMap(t *testing.T) {
	cache := &stubTableMapCache{tables: map[uint64]*TableMapEvent{}}
	e := &RowsEvent{
		Version:     2,
		tableIDSize: 6,
		tables:      cache,
		eventType:   WRITE_ROWS_EVENTv2,
	}

	data := []byte{
		9, 0, 0, 0, 0, 0,
		0, 0,
		2, 0,
		0,
	}

	err := e.Decode(data)
	require.ErrorIs(t, err, mysql.ErrMissingTableMap)
}

func TestIsBitSet(t *testing.T) {
	bitmap := []byte{0x05} // bits 0 and 2 set
	require.True(t, isBitSet(bitmap, 0))
	require.False(t, isBitSet(bitmap, 1))
	require.True(t, isBitSet(bitmap, 2))
}
