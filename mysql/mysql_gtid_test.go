package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sid1 = "3E11FA47-71CA-11E1-9E33-C80AA9429562"

func intervalsString(s IntervalSlice) string {
	out := ""
	for i, in := range s {
		if i > 0 {
			out += ":"
		}
		out += in.String()
	}
	return out
}

func TestParseUUIDSet(t *testing.T) {
	s, err := ParseUUIDSet(sid1 + ":1-5:11-15")
	require.NoError(t, err)
	require.Equal(t, "1-5:11-15", intervalsString(s.Intervals))
}

func TestUUIDSetContain(t *testing.T) {
	s, err := ParseUUIDSet(sid1 + ":1-10")
	require.NoError(t, err)

	sub, err := ParseUUIDSet(sid1 + ":3-5")
	require.NoError(t, err)

	require.True(t, s.Contain(sub))
	require.False(t, sub.Contain(s))
}

func TestUUIDSetMinusInterval(t *testing.T) {
	s, err := ParseUUIDSet(sid1 + ":1-10")
	require.NoError(t, err)

	s.MinusInterval(IntervalSlice{{Start: 3, Stop: 6}})
	require.Equal(t, "1-2:6-9", intervalsString(s.Intervals))
}

func TestUUIDSetEncodeDecode(t *testing.T) {
	s, err := ParseUUIDSet(sid1 + ":1-5:11-15")
	require.NoError(t, err)

	data := s.Encode()

	decoded := new(UUIDSet)
	require.NoError(t, decoded.Decode(data))
	require.Equal(t, s.SID, decoded.SID)
	require.True(t, s.Intervals.Equal(decoded.Intervals))
}

func TestMysqlGTIDSetParseAndString(t *testing.T) {
	set, err := ParseMysqlGTIDSet(sid1 + ":1-5")
	require.NoError(t, err)
	require.Equal(t, sid1+":1-5", set.String())
}

func TestMysqlGTIDSetUpdateAndContain(t *testing.T) {
	set, err := ParseMysqlGTIDSet(sid1 + ":1-5")
	require.NoError(t, err)

	require.NoError(t, set.Update(sid1 + ":6-10"))

	other, err := ParseMysqlGTIDSet(sid1 + ":1-10")
	require.NoError(t, err)
	require.True(t, set.Equal(other))
	require.True(t, set.Contain(other))
}

func TestMysqlGTIDSetCloneIsIndependent(t *testing.T) {
	set, err := ParseMysqlGTIDSet(sid1 + ":1-5")
	require.NoError(t, err)

	clone := set.Clone().(*MysqlGTIDSet)
	require.NoError(t, clone.Update(sid1 + ":6-10"))

	require.False(t, set.Equal(clone))
	require.Equal(t, sid1+":1-5", set.String())
	require.Equal(t, sid1+":1-10", clone.String())
}

func TestMysqlGTIDSetEncodeDecode(t *testing.T) {
	set, err := ParseMysqlGTIDSet(sid1 + ":1-5")
	require.NoError(t, err)

	decoded, err := DecodeMysqlGTIDSet(set.(*MysqlGTIDSet).Encode())
	require.NoError(t, err)
	require.True(t, set.Equal(decoded))
}

func TestMysqlGTIDSetIsEmpty(t *testing.T) {
	set, err := ParseMysqlGTIDSet("")
	require.NoError(t, err)
	require.True(t, set.(*MysqlGTIDSet).IsEmpty())
}
