package mysql

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/utils"
)

// Interval is a half-open GTID sequence-number range [Start, Stop), mirroring the layout
// MySQL's rpl_gtid.h uses internally, but rendered in GTID text form as a closed range.
type Interval struct {
	Start int64
	Stop  int64
}

// parseInterval reads either "n" (a single transaction) or "n1-n2" (an inclusive range)
// into the equivalent half-open Interval.
func parseInterval(str string) (Interval, error) {
	parts := strings.Split(str, "-")

	var iv Interval
	var err error

	switch len(parts) {
	case 1:
		iv.Start, err = strconv.ParseInt(parts[0], 10, 64)
		iv.Stop = iv.Start + 1
	case 2:
		if iv.Start, err = strconv.ParseInt(parts[0], 10, 64); err == nil {
			iv.Stop, err = strconv.ParseInt(parts[1], 10, 64)
			iv.Stop++
		}
	default:
		err = errors.Errorf("invalid interval format, must n[-n]")
	}
	if err != nil {
		return Interval{}, err
	}

	if iv.Stop <= iv.Start {
		return Interval{}, errors.Errorf("invalid interval format, must n[-n] and the end must >= start")
	}

	return iv, nil
}

func (iv Interval) String() string {
	if iv.Stop == iv.Start+1 {
		return strconv.FormatInt(iv.Start, 10)
	}
	return fmt.Sprintf("%d-%d", iv.Start, iv.Stop-1)
}

// IntervalSlice is a set of disjoint, sorted Intervals belonging to one UUIDSet.
type IntervalSlice []Interval

func (s IntervalSlice) Len() int      { return len(s) }
func (s IntervalSlice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s IntervalSlice) Less(i, j int) bool {
	if s[i].Start != s[j].Start {
		return s[i].Start < s[j].Start
	}
	return s[i].Stop < s[j].Stop
}

func (s IntervalSlice) Sort() {
	sort.Sort(s)
}

// Normalize sorts s and merges any overlapping or touching intervals into the minimal
// equivalent set.
func (s IntervalSlice) Normalize() IntervalSlice {
	if len(s) == 0 {
		return nil
	}

	s.Sort()

	merged := IntervalSlice{s[0]}
	for _, cur := range s[1:] {
		last := &merged[len(merged)-1]
		if cur.Start > last.Stop {
			merged = append(merged, cur)
			continue
		}
		if cur.Stop > last.Stop {
			last.Stop = cur.Stop
		}
	}

	return merged
}

// InsertInterval inserts interval into s in sorted order, coalescing it with any
// neighbors it now overlaps or touches.
func (s *IntervalSlice) InsertInterval(interval Interval) {
	*s = append(*s, interval)
	total := len(*s)

	merges := 0
	i := total - 1
	for ; i > 0; i-- {
		cur, prev := (*s)[i], (*s)[i-1]
		switch {
		case cur.Stop < prev.Start:
			(*s)[i], (*s)[i-1] = prev, cur
		case cur.Start > prev.Stop:
			goto settled
		default:
			(*s)[i-1].Start = min(prev.Start, cur.Start)
			(*s)[i-1].Stop = max(prev.Stop, cur.Stop)
			merges++
		}
	}

settled:
	if merges > 0 {
		i++
		if i+merges < total {
			copy((*s)[i:], (*s)[i+merges:])
		}
		*s = (*s)[:total-merges]
	}
}

// Contain reports whether every interval in sub falls entirely within some interval of s.
// Both slices must already be normalized and sorted.
func (s IntervalSlice) Contain(sub IntervalSlice) bool {
	j := 0
	for _, want := range sub {
		for j < len(s) && want.Start > s[j].Stop {
			j++
		}
		if j == len(s) {
			return false
		}
		if want.Start < s[j].Start || want.Stop > s[j].Stop {
			return false
		}
	}
	return true
}

func (s IntervalSlice) Equal(o IntervalSlice) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Compare returns 0 for an exact match, 1 when s is a strict superset of o, and -1
// otherwise (o is not fully covered by s).
func (s IntervalSlice) Compare(o IntervalSlice) int {
	switch {
	case s.Equal(o):
		return 0
	case s.Contain(o):
		return 1
	default:
		return -1
	}
}

// UUIDSet is one server's contribution to a MySQL GTID set: its UUID paired with every
// transaction-sequence interval committed under it. See
// https://dev.mysql.com/doc/refman/8.0/en/replication-gtids-concepts.html.
type UUIDSet struct {
	SID       uuid.UUID
	Intervals IntervalSlice
}

// ParseUUIDSet parses "UUID:interval[:interval...]".
func ParseUUIDSet(str string) (*UUIDSet, error) {
	fields := strings.Split(strings.TrimSpace(str), ":")
	if len(fields) < 2 {
		return nil, errors.Errorf("invalid GTID format, must UUID:interval[:interval]")
	}

	sid, err := uuid.Parse(fields[0])
	if err != nil {
		return nil, errors.Trace(err)
	}

	set := &UUIDSet{SID: sid}
	for _, f := range fields[1:] {
		iv, err := parseInterval(f)
		if err != nil {
			return nil, errors.Trace(err)
		}
		set.Intervals = append(set.Intervals, iv)
	}
	set.Intervals = set.Intervals.Normalize()

	return set, nil
}

// NewUUIDSet builds a UUIDSet directly from a list of intervals, normalizing them.
func NewUUIDSet(sid uuid.UUID, in ...Interval) *UUIDSet {
	return &UUIDSet{
		SID:       sid,
		Intervals: IntervalSlice(in).Normalize(),
	}
}

func (s *UUIDSet) Contain(sub *UUIDSet) bool {
	return s.SID == sub.SID && s.Intervals.Contain(sub.Intervals)
}

func (s *UUIDSet) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.SID.String())
	for _, iv := range s.Intervals {
		buf.WriteByte(':')
		buf.WriteString(iv.String())
	}
	return buf.Bytes()
}

func (s *UUIDSet) AddInterval(in IntervalSlice) {
	s.Intervals = append(s.Intervals, in...).Normalize()
}

// MinusInterval removes every sequence number covered by in from s's intervals. It walks
// both interval lists in lock step, splitting or dropping the current "minuend" interval
// as each "subtrahend" from in overlaps it.
func (s *UUIDSet) MinusInterval(in IntervalSlice) {
	in = in.Normalize()

	var result IntervalSlice
	var minuend, subtrahend Interval

	i, j := 0, 0
	for i < len(s.Intervals) {
		if minuend.Stop != s.Intervals[i].Stop {
			minuend = s.Intervals[i]
		}
		if j < len(in) {
			subtrahend = in[j]
		} else {
			subtrahend = Interval{math.MaxInt64, math.MaxInt64}
		}

		switch {
		case minuend.Stop <= subtrahend.Start:
			result = append(result, minuend)
			i++
		case minuend.Start >= subtrahend.Stop:
			j++
		case minuend.Start < subtrahend.Start && minuend.Stop <= subtrahend.Stop:
			result = append(result, Interval{minuend.Start, subtrahend.Start})
			i++
		case minuend.Start >= subtrahend.Start && minuend.Stop > subtrahend.Stop:
			minuend = Interval{subtrahend.Stop, minuend.Stop}
			j++
		case minuend.Start >= subtrahend.Start && minuend.Stop <= subtrahend.Stop:
			i++
		case minuend.Start < subtrahend.Start && minuend.Stop > subtrahend.Stop:
			result = append(result, Interval{minuend.Start, subtrahend.Start})
			minuend = Interval{subtrahend.Stop, minuend.Stop}
			j++
		default:
			panic("mysql: unreachable interval overlap case in MinusInterval")
		}
	}

	s.Intervals = result.Normalize()
}

func (s *UUIDSet) String() string {
	return utils.ByteSliceToString(s.Bytes())
}

// encode writes the UUID followed by an interval count and each interval's start/stop,
// all little-endian, matching the binary GTID set format a server sends for
// COM_BINLOG_DUMP_GTID.
func (s *UUIDSet) encode(w io.Writer) {
	raw, _ := s.SID.MarshalBinary()
	_, _ = w.Write(raw)

	_ = binary.Write(w, binary.LittleEndian, int64(len(s.Intervals)))
	for _, iv := range s.Intervals {
		_ = binary.Write(w, binary.LittleEndian, iv.Start)
		_ = binary.Write(w, binary.LittleEndian, iv.Stop)
	}
}

func (s *UUIDSet) Encode() []byte {
	var buf bytes.Buffer
	s.encode(&buf)
	return buf.Bytes()
}

// decode is the internal counterpart to encode; it returns the number of bytes consumed
// so DecodeMysqlGTIDSet can walk a buffer holding several UUIDSets back to back.
func (s *UUIDSet) decode(data []byte) (int, error) {
	const uuidLen = 16
	if len(data) < uuidLen+8 {
		return 0, errors.Errorf("invalid uuid set buffer, less 24")
	}

	sid, err := uuid.FromBytes(data[:uuidLen])
	if err != nil {
		return 0, err
	}
	s.SID = sid
	pos := uuidLen

	count := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
	pos += 8
	if need := pos + int(16*count); len(data) < need {
		return 0, errors.Errorf("invalid uuid set buffer, must %d, but %d", need, len(data))
	}

	s.Intervals = make(IntervalSlice, 0, count)
	for i := int64(0); i < count; i++ {
		start := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
		stop := int64(binary.LittleEndian.Uint64(data[pos+8 : pos+16]))
		pos += 16
		s.Intervals = append(s.Intervals, Interval{start, stop})
	}

	return pos, nil
}

func (s *UUIDSet) Decode(data []byte) error {
	consumed, err := s.decode(data)
	if err != nil {
		return err
	}
	if consumed != len(data) {
		return errors.Errorf("invalid uuid set buffer, must %d, but %d", consumed, len(data))
	}
	return nil
}

func (s *UUIDSet) Clone() *UUIDSet {
	clone := &UUIDSet{SID: s.SID, Intervals: make(IntervalSlice, len(s.Intervals))}
	copy(clone.Intervals, s.Intervals)
	return clone
}

// MysqlGTIDSet is a complete GTID set, one UUIDSet per contributing server, keyed by its
// UUID's string form.
type MysqlGTIDSet struct {
	Sets map[string]*UUIDSet
}

var _ GTIDSet = (*MysqlGTIDSet)(nil)

// ParseMysqlGTIDSet parses a comma-separated list of "UUID:interval[:interval]" entries.
// A later entry for a UUID already seen is merged rather than replacing the earlier one.
func ParseMysqlGTIDSet(str string) (GTIDSet, error) {
	s := &MysqlGTIDSet{Sets: make(map[string]*UUIDSet)}
	if str == "" {
		return s, nil
	}

	for _, entry := range strings.Split(str, ",") {
		set, err := ParseUUIDSet(entry)
		if err != nil {
			return nil, errors.Trace(err)
		}
		s.AddSet(set)
	}
	return s, nil
}

// DecodeMysqlGTIDSet decodes the binary GTID set format a server sends for
// COM_BINLOG_DUMP_GTID: an 8-byte little-endian UUIDSet count followed by that many
// encoded UUIDSets.
func DecodeMysqlGTIDSet(data []byte) (*MysqlGTIDSet, error) {
	if len(data) < 8 {
		return nil, errors.Errorf("invalid gtid set buffer, less 4")
	}

	count := int(binary.LittleEndian.Uint64(data))
	s := &MysqlGTIDSet{Sets: make(map[string]*UUIDSet, count)}

	pos := 8
	for i := 0; i < count; i++ {
		set := new(UUIDSet)
		n, err := set.decode(data[pos:])
		if err != nil {
			return nil, errors.Trace(err)
		}
		pos += n
		s.AddSet(set)
	}
	return s, nil
}

// AddSet merges set into s, extending an existing per-UUID entry's intervals if one is
// already present.
func (s *MysqlGTIDSet) AddSet(set *UUIDSet) {
	if set == nil {
		return
	}
	sid := set.SID.String()
	if existing, ok := s.Sets[sid]; ok {
		existing.AddInterval(set.Intervals)
	} else {
		s.Sets[sid] = set
	}
}

// MinusSet removes set's intervals from s's matching UUID entry, dropping the entry
// entirely once nothing is left.
func (s *MysqlGTIDSet) MinusSet(set *UUIDSet) {
	if set == nil {
		return
	}
	sid := set.SID.String()
	existing, ok := s.Sets[sid]
	if !ok {
		return
	}
	existing.MinusInterval(set.Intervals)
	if existing.Intervals == nil {
		delete(s.Sets, sid)
	}
}

func (s *MysqlGTIDSet) Update(gtidStr string) error {
	parsed, err := ParseMysqlGTIDSet(gtidStr)
	if err != nil {
		return err
	}
	for _, set := range parsed.(*MysqlGTIDSet).Sets {
		s.AddSet(set)
	}
	return nil
}

// AddGTID records a single committed transaction (sid, gno) in the set.
func (s *MysqlGTIDSet) AddGTID(sid uuid.UUID, gno int64) {
	key := sid.String()
	if existing, ok := s.Sets[key]; ok {
		existing.Intervals.InsertInterval(Interval{gno, gno + 1})
		return
	}
	s.Sets[key] = &UUIDSet{SID: sid, Intervals: IntervalSlice{{gno, gno + 1}}}
}

func (s *MysqlGTIDSet) Add(addend MysqlGTIDSet) error {
	for _, set := range addend.Sets {
		s.AddSet(set)
	}
	return nil
}

func (s *MysqlGTIDSet) Minus(subtrahend MysqlGTIDSet) error {
	for _, set := range subtrahend.Sets {
		s.MinusSet(set)
	}
	return nil
}

func (s *MysqlGTIDSet) Contain(o GTIDSet) bool {
	other, ok := o.(*MysqlGTIDSet)
	if !ok {
		return false
	}

	for sid, want := range other.Sets {
		have, ok := s.Sets[sid]
		if !ok || !have.Contain(want) {
			return false
		}
	}
	return true
}

func (s *MysqlGTIDSet) Equal(o GTIDSet) bool {
	other, ok := o.(*MysqlGTIDSet)
	if !ok || len(other.Sets) != len(s.Sets) {
		return false
	}

	for sid, want := range other.Sets {
		have, ok := s.Sets[sid]
		if !ok || !have.Intervals.Equal(want.Intervals) {
			return false
		}
	}
	return true
}

// String renders the set as MySQL does: a bare UUIDSet string when there's exactly one
// contributing server, otherwise a lexically sorted comma-separated list so the output is
// deterministic across runs.
func (s *MysqlGTIDSet) String() string {
	if len(s.Sets) == 1 {
		for _, set := range s.Sets {
			return set.String()
		}
	}

	rendered := make([]string, 0, len(s.Sets))
	for _, set := range s.Sets {
		rendered = append(rendered, set.String())
	}
	sort.Strings(rendered)

	return strings.Join(rendered, ",")
}

func (s *MysqlGTIDSet) Encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(s.Sets)))
	for _, set := range s.Sets {
		set.encode(&buf)
	}
	return buf.Bytes()
}

func (s *MysqlGTIDSet) Clone() GTIDSet {
	clone := &MysqlGTIDSet{Sets: make(map[string]*UUIDSet, len(s.Sets))}
	for sid, set := range s.Sets {
		clone.Sets[sid] = set.Clone()
	}
	return clone
}

func (s *MysqlGTIDSet) IsEmpty() bool {
	return len(s.Sets) == 0
}
