package replication

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// buildEventFrame assembles a complete 19-byte-header + body frame, appending a CRC32
// trailer over header+body when withChecksum is set.
func buildEventFrame(eventType EventType, body []byte, withChecksum bool) []byte {
	size := uint32(EventHeaderSize + len(body))
	if withChecksum {
		size += BinlogChecksumLength
	}

	frame := make([]byte, 0, size)
	frame = append(frame, le32(0)...)       // Timestamp
	frame = append(frame, byte(eventType))  // EventType
	frame = append(frame, le32(1)...)       // ServerID
	frame = append(frame, le32(size)...)    // EventSize
	frame = append(frame, le32(size)...)    // LogPos
	frame = append(frame, le16(0)...)       // Flags
	frame = append(frame, body...)

	if withChecksum {
		sum := crc32.ChecksumIEEE(frame)
		frame = append(frame, le32(sum)...)
	}
	return frame
}

// formatDescriptionBody builds a minimal FormatDescriptionEvent body whose embedded server
// version is new enough to carry a checksum algorithm byte, per spec §4.8.
func formatDescriptionBody(checksumAlg byte) []byte {
	body := make([]byte, 0, 62)
	body = append(body, le16(4)...) // Version

	serverVersion := make([]byte, 50)
	copy(serverVersion, []byte("5.7.30-log"))
	body = append(body, serverVersion...)

	body = append(body, le32(0)...)      // CreateTimestamp
	body = append(body, byte(EventHeaderSize)) // EventHeaderLength

	body = append(body, checksumAlg) // checksum algorithm byte
	body = append(body, 0, 0, 0, 0)  // 4-byte checksum placeholder (not verified for this event)
	return body
}

func TestBinlogParserFormatDescriptionThenRotate(t *testing.T) {
	p := NewBinlogParser()

	fdFrame := buildEventFrame(FORMAT_DESCRIPTION_EVENT, formatDescriptionBody(BINLOG_CHECKSUM_ALG_CRC32), false)
	be, n, err := p.parseEvent(fdFrame)
	require.NoError(t, err)
	require.Equal(t, len(fdFrame), n)

	fd, ok := be.Event.(*FormatDescriptionEvent)
	require.True(t, ok)
	require.Equal(t, BINLOG_CHECKSUM_ALG_CRC32, fd.ChecksumAlgorithm)
	require.Equal(t, fd, p.format)

	rotateBody := append(le64(4), []byte("mysql-bin.000002")...)
	rotateFrame := buildEventFrame(ROTATE_EVENT, rotateBody, true)

	be, n, err = p.parseEvent(rotateFrame)
	require.NoError(t, err)
	require.Equal(t, len(rotateFrame), n)

	rotate, ok := be.Event.(*RotateEvent)
	require.True(t, ok)
	require.Equal(t, uint64(4), rotate.Position)
	require.Equal(t, "mysql-bin.000002", string(rotate.NextLogName))
}

func TestBinlogParserChecksumMismatch(t *testing.T) {
	p := NewBinlogParser()

	fdFrame := buildEventFrame(FORMAT_DESCRIPTION_EVENT, formatDescriptionBody(BINLOG_CHECKSUM_ALG_CRC32), false)
	_, _, err := p.parseEvent(fdFrame)
	require.NoError(t, err)

	rotateBody := append(le64(4), []byte("mysql-bin.000002")...)
	rotateFrame := buildEventFrame(ROTATE_EVENT, rotateBody, true)
	rotateFrame[len(rotateFrame)-1] ^= 0xFF // corrupt the checksum trailer

	_, _, err = p.parseEvent(rotateFrame)
	require.Error(t, err)
}

func TestBinlogParserRawModeKeepsOnlyFormatAndRotate(t *testing.T) {
	p := NewBinlogParser()
	p.SetRawMode(true)

	fdFrame := buildEventFrame(FORMAT_DESCRIPTION_EVENT, formatDescriptionBody(BINLOG_CHECKSUM_ALG_OFF), false)
	be, _, err := p.parseEvent(fdFrame)
	require.NoError(t, err)
	_, ok := be.Event.(*FormatDescriptionEvent)
	require.True(t, ok)

	heartbeatFrame := buildEventFrame(HEARTBEAT_EVENT, []byte("mysql-bin.000001"), false)
	be, _, err = p.parseEvent(heartbeatFrame)
	require.NoError(t, err)
	_, ok = be.Event.(*GenericEvent)
	require.True(t, ok, "raw mode must not decode non-Format/Rotate events")
}

func TestBinlogParserGenericEventFallback(t *testing.T) {
	p := NewBinlogParser()

	frame := buildEventFrame(UNKNOWN_EVENT, []byte("whatever"), false)
	be, _, err := p.parseEvent(frame)
	require.NoError(t, err)

	g, ok := be.Event.(*GenericEvent)
	require.True(t, ok)
	require.Equal(t, "whatever", string(g.Data))
}

func TestBinlogParserTableMapCacheClearedOnStmtEnd(t *testing.T) {
	p := NewBinlogParser()
	p.tables[42] = &TableMapEvent{TableID: 42}

	rowsEvent := &RowsEvent{Flags: RowsEventStmtEndFlag}
	require.NoError(t, p.postProcess(WRITE_ROWS_EVENTv2, rowsEvent))

	_, ok := p.Get(42)
	require.False(t, ok)
}

func TestBinlogParserReset(t *testing.T) {
	p := NewBinlogParser()
	p.format = &FormatDescriptionEvent{ChecksumAlgorithm: BINLOG_CHECKSUM_ALG_CRC32}
	p.tables[1] = &TableMapEvent{TableID: 1}

	p.Reset()

	require.Nil(t, p.format)
	_, ok := p.Get(1)
	require.False(t, ok)
}
