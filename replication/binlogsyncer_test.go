package replication

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/mysql-binlog/mysql"
)

func TestAppendUint16(t *testing.T) {
	b := appendUint16(nil, 0x0102)
	require.Equal(t, []byte{0x02, 0x01}, b)
}

func TestAppendUint32(t *testing.T) {
	b := appendUint32(nil, 0x01020304)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b)
}

func TestAppendUint64(t *testing.T) {
	b := appendUint64(nil, 0x0102030405060708)
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b)
}

func TestCloneGTIDSetNil(t *testing.T) {
	require.Nil(t, cloneGTIDSet(nil))
}

func TestCloneGTIDSetMysqlIsIndependent(t *testing.T) {
	orig, err := mysql.ParseMysqlGTIDSet("3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5")
	require.NoError(t, err)

	clone := cloneGTIDSet(orig)
	require.Equal(t, orig.String(), clone.String())

	orig.(*mysql.MysqlGTIDSet).AddGTID(uuid.MustParse("3E11FA47-71CA-11E1-9E33-C80AA9429562"), 6)
	require.NotEqual(t, orig.String(), clone.String())
}

func TestCloneGTIDSetMariadb(t *testing.T) {
	orig, err := mysql.ParseMariadbGTIDSet("0-1-5")
	require.NoError(t, err)

	clone := cloneGTIDSet(orig)
	require.Equal(t, orig.String(), clone.String())
	require.IsType(t, &mysql.MariadbGTIDSet{}, clone)
}

func TestSeedGTIDSetMySQLFlavorEmptyWhenNilPrev(t *testing.T) {
	b := NewBinlogSyncer(SyncerConfig{ServerID: 1, Flavor: MySQLFlavor})
	s := b.seedGTIDSet(nil)
	require.IsType(t, &mysql.MysqlGTIDSet{}, s)
	require.True(t, s.(*mysql.MysqlGTIDSet).IsEmpty())
}

func TestSeedGTIDSetMariaDBFlavorEmptyWhenNilPrev(t *testing.T) {
	b := NewBinlogSyncer(SyncerConfig{ServerID: 1, Flavor: MariaDBFlavor})
	s := b.seedGTIDSet(nil)
	require.IsType(t, &mysql.MariadbGTIDSet{}, s)
}

func TestSeedGTIDSetClonesPrevWhenPresent(t *testing.T) {
	b := NewBinlogSyncer(SyncerConfig{ServerID: 1, Flavor: MySQLFlavor})
	prev, err := mysql.ParseMysqlGTIDSet("3E11FA47-71CA-11E1-9E33-C80AA9429562:1-5")
	require.NoError(t, err)

	s := b.seedGTIDSet(prev)
	require.Equal(t, prev.String(), s.String())
}
