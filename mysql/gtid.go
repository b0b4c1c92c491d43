package mysql

// GTIDSet is the small capability interface that lets MySQL-flavor and MariaDB-flavor GTID
// sets be handled interchangeably wherever only set algebra (not flavor-specific fields) is
// needed: the position-tracking, persistence, and comparison paths in replication/ never
// switch on flavor, they just call through this interface.
type GTIDSet interface {
	// String renders the set in its flavor's canonical textual form.
	String() string

	// Encode renders the set in its flavor's binary wire form, as sent in a
	// COM_BINLOG_DUMP_GTID command.
	Encode() []byte

	// Equal reports whether o represents the same set of transactions.
	Equal(o GTIDSet) bool

	// Contain reports whether every transaction in o is also present in this set.
	Contain(o GTIDSet) bool

	// Update merges a single GTID, given in its flavor's textual form, into the set.
	Update(gtid string) error
}
