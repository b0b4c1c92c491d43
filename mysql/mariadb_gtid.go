package mysql

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/utils"
)

// MariadbGTID represents a MariaDB GTID, domain-id-server-id-sequence.
type MariadbGTID struct {
	DomainID       uint32
	ServerID       uint32
	SequenceNumber uint64
}

// ParseMariadbGTID parses a single "domain-server-sequence" GTID.
func ParseMariadbGTID(str string) (*MariadbGTID, error) {
	if len(str) == 0 {
		return &MariadbGTID{0, 0, 0}, nil
	}

	seps := strings.Split(str, "-")
	gtid := new(MariadbGTID)

	if len(seps) != 3 {
		return gtid, errors.Errorf("invalid MariaDB GTID %v, must be domain-server-sequence", str)
	}

	domainID, err := strconv.ParseUint(seps[0], 10, 32)
	if err != nil {
		return gtid, errors.Errorf("invalid MariaDB GTID domain id (%v): %v", seps[0], err)
	}

	serverID, err := strconv.ParseUint(seps[1], 10, 32)
	if err != nil {
		return gtid, errors.Errorf("invalid MariaDB GTID server id (%v): %v", seps[1], err)
	}

	sequenceID, err := strconv.ParseUint(seps[2], 10, 64)
	if err != nil {
		return gtid, errors.Errorf("invalid MariaDB GTID sequence number (%v): %v", seps[2], err)
	}

	return &MariadbGTID{
		DomainID:       uint32(domainID),
		ServerID:       uint32(serverID),
		SequenceNumber: sequenceID,
	}, nil
}

func (gtid *MariadbGTID) String() string {
	if gtid.DomainID == 0 && gtid.ServerID == 0 && gtid.SequenceNumber == 0 {
		return ""
	}

	return fmt.Sprintf("%d-%d-%d", gtid.DomainID, gtid.ServerID, gtid.SequenceNumber)
}

// Contain reports whether gtid covers other: same domain, and other's sequence number has
// already been reached.
func (gtid *MariadbGTID) Contain(other *MariadbGTID) bool {
	return gtid.DomainID == other.DomainID && gtid.SequenceNumber >= other.SequenceNumber
}

// Clone returns a deep copy of gtid.
func (gtid *MariadbGTID) Clone() *MariadbGTID {
	o := new(MariadbGTID)
	*o = *gtid
	return o
}

// forward advances gtid to newer within the same domain. A sequence number that goes
// backward or repeats is logged, not rejected: a domain can have concurrent writers whose
// events interleave out of sequence order on the wire, and the set must still track the
// latest-seen position per domain rather than erroring out mid-stream.
func (gtid *MariadbGTID) forward(newer *MariadbGTID) error {
	if newer.DomainID != gtid.DomainID {
		return errors.Errorf("%s is not in the same domain as %s", newer, gtid)
	}

	if newer.SequenceNumber <= gtid.SequenceNumber {
		slog.Warn("out of order binlog GTID",
			slog.String("incoming", newer.String()),
			slog.String("current", gtid.String()))
	}

	gtid.ServerID = newer.ServerID
	gtid.SequenceNumber = newer.SequenceNumber
	return nil
}

// MariadbGTIDSet is a set of MariaDB GTIDs, one position per domain.
type MariadbGTIDSet struct {
	Sets map[uint32]*MariadbGTID
}

// ParseMariadbGTIDSet parses a comma-separated list of domain-server-sequence GTIDs.
func ParseMariadbGTIDSet(str string) (GTIDSet, error) {
	s := new(MariadbGTIDSet)
	s.Sets = make(map[uint32]*MariadbGTID)
	if str == "" {
		return s, nil
	}

	sp := strings.Split(str, ",")
	for i := 0; i < len(sp); i++ {
		if err := s.Update(sp[i]); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return s, nil
}

// AddSet merges a single GTID into the set, advancing the existing per-domain position if
// one is already present.
func (s *MariadbGTIDSet) AddSet(gtid *MariadbGTID) error {
	if gtid == nil {
		return nil
	}

	o, ok := s.Sets[gtid.DomainID]
	if ok {
		if err := o.forward(gtid); err != nil {
			return errors.Trace(err)
		}
	} else {
		s.Sets[gtid.DomainID] = gtid
	}

	return nil
}

// Update parses gtidStr and merges it into the set.
func (s *MariadbGTIDSet) Update(gtidStr string) error {
	gtid, err := ParseMariadbGTID(gtidStr)
	if err != nil {
		return err
	}

	return errors.Trace(s.AddSet(gtid))
}

func (s *MariadbGTIDSet) String() string {
	return utils.ByteSliceToString(s.Encode())
}

// Encode renders the set as a comma-separated domain-server-sequence list.
func (s *MariadbGTIDSet) Encode() []byte {
	var buf bytes.Buffer
	sep := ""
	for _, gtid := range s.Sets {
		buf.WriteString(sep)
		buf.WriteString(gtid.String())
		sep = ","
	}
	return buf.Bytes()
}

// Clone returns a deep copy of the set.
func (s *MariadbGTIDSet) Clone() *MariadbGTIDSet {
	clone := &MariadbGTIDSet{
		Sets: make(map[uint32]*MariadbGTID),
	}
	for domainID, gtid := range s.Sets {
		clone.Sets[domainID] = gtid.Clone()
	}
	return clone
}

// Equal reports whether s and o hold exactly the same per-domain positions.
func (s *MariadbGTIDSet) Equal(o GTIDSet) bool {
	other, ok := o.(*MariadbGTIDSet)
	if !ok {
		return false
	}

	if len(other.Sets) != len(s.Sets) {
		return false
	}

	for domainID, gtid := range other.Sets {
		mine, ok := s.Sets[domainID]
		if !ok {
			return false
		}
		if *gtid != *mine {
			return false
		}
	}

	return true
}

// Contain reports whether every domain position in o has already been reached in s.
func (s *MariadbGTIDSet) Contain(o GTIDSet) bool {
	other, ok := o.(*MariadbGTIDSet)
	if !ok {
		return false
	}

	for domainID, gtid := range other.Sets {
		mine, ok := s.Sets[domainID]
		if !ok {
			return false
		}
		if !mine.Contain(gtid) {
			return false
		}
	}

	return true
}

var _ GTIDSet = (*MariadbGTIDSet)(nil)
