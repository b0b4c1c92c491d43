package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionCompare(t *testing.T) {
	cases := []struct {
		a, b Position
		want int
	}{
		{Position{"mysql-bin.000001", 100}, Position{"mysql-bin.000001", 100}, 0},
		{Position{"mysql-bin.000001", 100}, Position{"mysql-bin.000001", 200}, -1},
		{Position{"mysql-bin.000002", 10}, Position{"mysql-bin.000001", 999999}, 1},
		{Position{"", 0}, Position{"mysql-bin.000001", 4}, -1},
		{Position{"mysql-bin.000001", 4}, Position{"", 0}, 1},
		{Position{"relay.000010", 4}, Position{"relay.000002", 4}, 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.a.Compare(c.b))
	}
}

func TestPositionCompareNonConventionalNames(t *testing.T) {
	a := Position{Name: "alpha", Pos: 10}
	b := Position{Name: "beta", Pos: 5}
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
}

func TestPositionString(t *testing.T) {
	p := Position{Name: "mysql-bin.000001", Pos: 4}
	require.Equal(t, "(mysql-bin.000001, 4)", p.String())
}
