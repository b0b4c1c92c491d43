package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMariadbGTID(t *testing.T) {
	gtid, err := ParseMariadbGTID("1-2-3")
	require.NoError(t, err)
	require.Equal(t, uint32(1), gtid.DomainID)
	require.Equal(t, uint32(2), gtid.ServerID)
	require.Equal(t, uint64(3), gtid.SequenceNumber)
	require.Equal(t, "1-2-3", gtid.String())
}

func TestParseMariadbGTIDInvalid(t *testing.T) {
	_, err := ParseMariadbGTID("1-2")
	require.Error(t, err)
}

func TestMariadbGTIDContain(t *testing.T) {
	a, err := ParseMariadbGTID("1-2-10")
	require.NoError(t, err)
	b, err := ParseMariadbGTID("1-2-5")
	require.NoError(t, err)
	c, err := ParseMariadbGTID("2-2-5")
	require.NoError(t, err)

	require.True(t, a.Contain(b))
	require.False(t, b.Contain(a))
	require.False(t, a.Contain(c))
}

func TestMariadbGTIDSetParseAndUpdate(t *testing.T) {
	set, err := ParseMariadbGTIDSet("1-1-10,2-1-20")
	require.NoError(t, err)

	mset := set.(*MariadbGTIDSet)
	require.Len(t, mset.Sets, 2)
	require.Equal(t, uint64(10), mset.Sets[1].SequenceNumber)

	require.NoError(t, set.Update("1-1-15"))
	require.Equal(t, uint64(15), mset.Sets[1].SequenceNumber)
}

func TestMariadbGTIDSetUpdateDifferentDomainFromSameDomain(t *testing.T) {
	set, err := ParseMariadbGTIDSet("1-1-10")
	require.NoError(t, err)

	mset := set.(*MariadbGTIDSet)
	// forwarding an older sequence number within the same domain is tolerated, not rejected
	require.NoError(t, mset.AddSet(&MariadbGTID{DomainID: 1, ServerID: 1, SequenceNumber: 5}))
	require.Equal(t, uint64(5), mset.Sets[1].SequenceNumber)
}

func TestMariadbGTIDSetContainAndEqual(t *testing.T) {
	a, err := ParseMariadbGTIDSet("1-1-10,2-1-20")
	require.NoError(t, err)
	b, err := ParseMariadbGTIDSet("1-1-5")
	require.NoError(t, err)

	require.True(t, a.Contain(b))
	require.False(t, b.Contain(a))
	require.False(t, a.Equal(b))
	require.True(t, a.Equal(a.(*MariadbGTIDSet).Clone()))
}

func TestMariadbGTIDSetCloneIsIndependent(t *testing.T) {
	a, err := ParseMariadbGTIDSet("1-1-10")
	require.NoError(t, err)
	clone := a.(*MariadbGTIDSet).Clone()

	require.NoError(t, clone.Update("1-1-20"))
	require.Equal(t, uint64(10), a.(*MariadbGTIDSet).Sets[1].SequenceNumber)
	require.Equal(t, uint64(20), clone.Sets[1].SequenceNumber)
}
