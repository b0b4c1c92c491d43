package replication

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// Binlog checksum algorithm codes carried in FormatDescriptionEvent.ChecksumAlgorithm.
const (
	BINLOG_CHECKSUM_ALG_OFF   byte = 0
	BINLOG_CHECKSUM_ALG_CRC32 byte = 1
	BINLOG_CHECKSUM_ALG_UNDEF byte = 255
)

const (
	MySQLFlavor   = "mysql"
	MariaDBFlavor = "mariadb"
)

// binlogFileMagic is the 4-byte header every binlog/relay-log file starts with.
var binlogFileMagic = []byte{0xfe, 'b', 'i', 'n'}

// RowsQueryEvent carries the original (un-rewritten) SQL statement of the transaction a
// rows event belongs to, sent when binlog_rows_query_log_events is on.
type RowsQueryEvent struct {
	Query []byte
}

func (e *RowsQueryEvent) Decode(data []byte) error {
	// one length byte (historically a VLQ, in practice always < 128) then the text.
	e.Query = data[1:]
	return nil
}

func (e *RowsQueryEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "Query: %s\n", e.Query)
	fmt.Fprintln(w)
}

// HeartbeatEvent is sent by the server on an idle connection to keep it alive; it carries
// no payload of its own beyond the log file name already present in the shared header.
type HeartbeatEvent struct {
	LogName []byte
}

func (e *HeartbeatEvent) Decode(data []byte) error {
	e.LogName = data
	return nil
}

func (e *HeartbeatEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "Log name: %s\n", e.LogName)
	fmt.Fprintln(w)
}

// IncidentEvent signals the master lost track of events (e.g. LOST_EVENTS) and the
// replication stream downstream of it is no longer guaranteed consistent.
type IncidentEvent struct {
	Type    uint16
	Message []byte
}

func (e *IncidentEvent) Decode(data []byte) error {
	e.Type = binary.LittleEndian.Uint16(data[0:])
	msg, _, n, err := mysql.LengthEncodedString(data[2:])
	if err != nil {
		return errors.Trace(err)
	}
	_ = n
	e.Message = msg
	return nil
}

func (e *IncidentEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "Incident type: %d\n", e.Type)
	fmt.Fprintf(w, "Message: %s\n", e.Message)
	fmt.Fprintln(w)
}

// GenericEvent wraps the raw body of any event type the parser does not decode further,
// either because raw mode is on or because the type has no structured decoder. It keeps
// the pump loop uniform: every event type, decoded or not, satisfies Event.
type GenericEvent struct {
	Data []byte
}

func (e *GenericEvent) Decode(data []byte) error {
	e.Data = data
	return nil
}

func (e *GenericEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "Generic event, size: %d\n", len(e.Data))
}

// rowsEventType reports whether t is one of the WRITE/UPDATE/DELETE rows event codes
// across all three wire versions, and if so its logical version (0, 1, or 2) and whether
// it carries two column bitmaps (UPDATE) and a JSON partial-update value-options byte.
func rowsEventKind(t EventType) (version int, isUpdate bool, ok bool) {
	switch t {
	case WRITE_ROWS_EVENTv0:
		return 0, false, true
	case UPDATE_ROWS_EVENTv0:
		return 0, true, true
	case DELETE_ROWS_EVENTv0:
		return 0, false, true
	case WRITE_ROWS_EVENTv1:
		return 1, false, true
	case UPDATE_ROWS_EVENTv1:
		return 1, true, true
	case DELETE_ROWS_EVENTv1:
		return 1, false, true
	case WRITE_ROWS_EVENTv2:
		return 2, false, true
	case UPDATE_ROWS_EVENTv2:
		return 2, true, true
	case DELETE_ROWS_EVENTv2:
		return 2, false, true
	case PARTIAL_UPDATE_ROWS_EVENT:
		return 2, true, true
	default:
		return 0, false, false
	}
}

// BinlogParser turns raw event frames into decoded *BinlogEvent values, tracking the
// cross-event state a stream of events needs: the active FormatDescriptionEvent (for
// checksum presence) and the table-map cache row events are decoded against.
type BinlogParser struct {
	format *FormatDescriptionEvent
	tables map[uint64]*TableMapEvent

	flavor string

	rawMode        bool
	verifyChecksum bool

	useDecimal               bool
	useFloatWithTrailingZero bool
	ignoreJSONDecodeErr      bool
	parseTime                bool

	stop bool
}

// NewBinlogParser returns a parser ready to decode a fresh stream: MySQL flavor, checksum
// verification on, no table-map state.
func NewBinlogParser() *BinlogParser {
	return &BinlogParser{
		tables:         make(map[uint64]*TableMapEvent),
		flavor:         MySQLFlavor,
		verifyChecksum: true,
	}
}

func (p *BinlogParser) SetFlavor(flavor string) { p.flavor = flavor }

func (p *BinlogParser) SetRawMode(raw bool) { p.rawMode = raw }

func (p *BinlogParser) SetVerifyChecksum(verify bool) { p.verifyChecksum = verify }

func (p *BinlogParser) SetUseDecimal(use bool) { p.useDecimal = use }

func (p *BinlogParser) SetUseFloatWithTrailingZero(use bool) { p.useFloatWithTrailingZero = use }

func (p *BinlogParser) SetIgnoreJSONDecodeErr(ignore bool) { p.ignoreJSONDecodeErr = ignore }

func (p *BinlogParser) SetParseTime(parse bool) { p.parseTime = parse }

// Stop tells the file-mode streaming parser to return at the next event boundary.
func (p *BinlogParser) Stop() { p.stop = true }

// Get implements TableMapCache for RowsEvent.
func (p *BinlogParser) Get(tableID uint64) (*TableMapEvent, bool) {
	t, ok := p.tables[tableID]
	return t, ok
}

// Reset drops all accumulated FormatDescription/table-map state, for reuse across a
// reconnect that starts a brand new event stream.
func (p *BinlogParser) Reset() {
	p.format = nil
	p.tables = make(map[uint64]*TableMapEvent)
}

// verifyEventChecksum checks the trailing 4-byte little-endian CRC32 (zlib polynomial,
// the same one hash/crc32.IEEETable computes) against the rest of the frame, per spec
// §4.8. body is the full raw frame (header + event body), including the trailer.
func verifyEventChecksum(rawData []byte) error {
	if len(rawData) < BinlogChecksumLength {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	computed := crc32.ChecksumIEEE(rawData[:len(rawData)-BinlogChecksumLength])
	want := binary.LittleEndian.Uint32(rawData[len(rawData)-BinlogChecksumLength:])
	if computed != want {
		return errors.Trace(mysql.ErrChecksumMismatch)
	}
	return nil
}

// parseEvent decodes one event frame (header + body, with an optional trailing checksum)
// from the front of data and returns the decoded event along with the number of bytes it
// consumed, so callers chaining back-to-back frames (a relay log stream, or
// TransactionPayloadEvent's inner events) can advance by that amount.
func (p *BinlogParser) parseEvent(data []byte) (*BinlogEvent, int, error) {
	if len(data) < EventHeaderSize {
		return nil, 0, errors.Trace(mysql.ErrMalformedEvent)
	}

	header := new(EventHeader)
	if err := header.Decode(data); err != nil {
		return nil, 0, errors.Trace(err)
	}

	n := int(header.EventSize)
	if len(data) < n {
		return nil, 0, errors.Trace(mysql.ErrMalformedEvent)
	}
	rawData := data[:n]
	body := rawData[EventHeaderSize:]

	hasChecksum := p.format != nil && p.format.ChecksumAlgorithm == BINLOG_CHECKSUM_ALG_CRC32
	if hasChecksum {
		if p.verifyChecksum {
			if err := verifyEventChecksum(rawData); err != nil {
				return nil, 0, err
			}
		}
		body = body[:len(body)-BinlogChecksumLength]
	}

	ev, err := p.decodeEventBody(header.EventType, body)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "parse %s event failed", header.EventType)
	}

	be := &BinlogEvent{RawData: rawData, Header: header, Event: ev}

	if err := p.postProcess(header.EventType, ev); err != nil {
		return nil, 0, err
	}

	return be, n, nil
}

// decodeEventBody allocates the concrete Event implementation for t and decodes body into
// it. Raw mode only decodes the two event types the stream cannot be correctly continued
// without (FormatDescription and Rotate); everything else comes back as a GenericEvent.
func (p *BinlogParser) decodeEventBody(t EventType, body []byte) (Event, error) {
	if p.rawMode {
		switch t {
		case FORMAT_DESCRIPTION_EVENT, ROTATE_EVENT:
			// fall through to the normal dispatch below
		default:
			return &GenericEvent{Data: body}, nil
		}
	}

	var e Event

	switch t {
	case FORMAT_DESCRIPTION_EVENT:
		e = &FormatDescriptionEvent{}

	case ROTATE_EVENT:
		e = &RotateEvent{}

	case QUERY_EVENT:
		e = &QueryEvent{}

	case XID_EVENT:
		e = &XIDEvent{}

	case TABLE_MAP_EVENT:
		e = &TableMapEvent{flavor: p.flavor}

	case WRITE_ROWS_EVENTv0, UPDATE_ROWS_EVENTv0, DELETE_ROWS_EVENTv0,
		WRITE_ROWS_EVENTv1, UPDATE_ROWS_EVENTv1, DELETE_ROWS_EVENTv1,
		WRITE_ROWS_EVENTv2, UPDATE_ROWS_EVENTv2, DELETE_ROWS_EVENTv2,
		PARTIAL_UPDATE_ROWS_EVENT:
		version, needBitmap2, _ := rowsEventKind(t)
		e = p.newRowsEvent(t, version, needBitmap2)

	case ROWS_QUERY_EVENT:
		e = &RowsQueryEvent{}

	case GTID_EVENT, ANONYMOUS_GTID_EVENT:
		e = &GTIDEvent{}

	case GTID_TAGGED_LOG_EVENT:
		e = &GtidTaggedLogEvent{}

	case PREVIOUS_GTIDS_EVENT:
		e = &PreviousGTIDsEvent{}

	case MARIADB_GTID_EVENT:
		e = &MariadbGTIDEvent{}

	case MARIADB_GTID_LIST_EVENT:
		e = &MariadbGTIDListEvent{}

	case MARIADB_ANNOTATE_ROWS_EVENT:
		e = &MariadbAnnotateRowsEvent{}

	case MARIADB_BINLOG_CHECKPOINT_EVENT:
		e = &MariadbBinlogCheckPointEvent{}

	case INTVAR_EVENT:
		e = &IntVarEvent{}

	case BEGIN_LOAD_QUERY_EVENT:
		e = &BeginLoadQueryEvent{}

	case EXECUTE_LOAD_QUERY_EVENT:
		e = &ExecuteLoadQueryEvent{}

	case HEARTBEAT_EVENT, HEARTBEAT_LOG_EVENT_V2:
		e = &HeartbeatEvent{}

	case INCIDENT_EVENT:
		e = &IncidentEvent{}

	case TRANSACTION_PAYLOAD_EVENT:
		e = &TransactionPayloadEvent{}

	default:
		e = &GenericEvent{Data: body}
		return e, nil
	}

	if err := e.Decode(body); err != nil {
		return nil, errors.Trace(err)
	}

	return e, nil
}

// newRowsEvent builds a RowsEvent wired to this parser's table-map cache and decode
// options; same package as RowsEvent so it may set the unexported fields directly.
func (p *BinlogParser) newRowsEvent(t EventType, version int, needBitmap2 bool) *RowsEvent {
	return &RowsEvent{
		Version:                  version,
		tableIDSize:              6,
		tables:                   p,
		needBitmap2:              needBitmap2,
		eventType:                t,
		useDecimal:               p.useDecimal,
		useFloatWithTrailingZero: p.useFloatWithTrailingZero,
		ignoreJSONDecodeErr:      p.ignoreJSONDecodeErr,
		parseTime:                p.parseTime,
	}
}

// postProcess updates cross-event parser state after a successful decode: the active
// FormatDescription, the table-map cache, and TransactionPayloadEvent's need for the
// current FormatDescription to parse its own inner events.
func (p *BinlogParser) postProcess(t EventType, e Event) error {
	switch ev := e.(type) {
	case *FormatDescriptionEvent:
		p.format = ev

	case *TableMapEvent:
		p.tables[ev.TableID] = ev

	case *RowsEvent:
		if ev.Flags&RowsEventStmtEndFlag != 0 {
			p.tables = make(map[uint64]*TableMapEvent)
		}

	case *TransactionPayloadEvent:
		ev.formatDescription = p.format
	}
	_ = t
	return nil
}

// ParseFile streams events from a complete binlog/relay-log file, starting at offset
// (which must be 0 or >= 4, the magic header length). The file's own FormatDescription is
// always parsed first regardless of offset, since every subsequent event depends on it for
// checksum handling.
func (p *BinlogParser) ParseFile(r io.Reader, offset int64, onEvent func(*BinlogEvent) error) error {
	br := bufio.NewReaderSize(r, 64*1024)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(br, magic); err != nil {
		return errors.Trace(err)
	}
	for i, b := range binlogFileMagic {
		if magic[i] != b {
			return errors.Errorf("invalid binlog file header, expect %x got %x", binlogFileMagic, magic)
		}
	}

	pos := int64(4)
	for {
		if p.stop {
			return nil
		}

		headerBuf := make([]byte, EventHeaderSize)
		if _, err := io.ReadFull(br, headerBuf); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Trace(err)
		}

		header := new(EventHeader)
		if err := header.Decode(headerBuf); err != nil {
			return errors.Trace(err)
		}

		bodyBuf := make([]byte, int(header.EventSize)-EventHeaderSize)
		if _, err := io.ReadFull(br, bodyBuf); err != nil {
			return errors.Trace(err)
		}

		rawData := append(append([]byte(nil), headerBuf...), bodyBuf...)

		if pos < offset && header.EventType != FORMAT_DESCRIPTION_EVENT {
			pos += int64(header.EventSize)
			continue
		}

		be, _, err := p.parseEvent(rawData)
		if err != nil {
			return errors.Trace(err)
		}

		if err := onEvent(be); err != nil {
			return errors.Trace(err)
		}

		pos += int64(header.EventSize)
	}
}
