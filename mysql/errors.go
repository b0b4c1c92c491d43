package mysql

import "github.com/pingcap/errors"

// Sentinel errors for the error kinds in the spec's error-handling design. Kept as plain
// sentinel values (matching the teacher's ErrTableNotExist/ErrMalformPacket style) rather
// than a custom exported error-type hierarchy.
var (
	// ErrMalformPacket is returned by the primitive codec when a length-encoded field
	// runs past the end of the supplied buffer.
	ErrMalformPacket = errors.New("malformed packet")

	// ErrBadConn is a transport-kind error: the underlying connection is no longer usable.
	ErrBadConn = errors.New("connection was bad")

	// ErrProtocolFraming covers a bad packet sequence number, a short packet, or an
	// invalid binlog file magic.
	ErrProtocolFraming = errors.New("protocol framing error")

	// ErrMalformedEvent covers an event body shorter than declared, an unknown column
	// type, or a bad optional-metadata tag.
	ErrMalformedEvent = errors.New("malformed binlog event")

	// ErrMissingTableMap is returned when a row event references a tableId with no
	// cached TableMapEvent.
	ErrMissingTableMap = errors.New("missing table map event for row event")

	// ErrChecksumMismatch is returned when the verified CRC32 trailer does not match.
	ErrChecksumMismatch = errors.New("binlog event checksum mismatch")

	// ErrInvalidGTID is returned only by GTID text/binary parsing, never by the wire path.
	ErrInvalidGTID = errors.New("invalid GTID")

	// ErrJSONTruncated is surfaced (in lenient mode) when a JSON value document is
	// shorter than its own declared header implies.
	ErrJSONTruncated = errors.New("truncated JSON document")

	// ErrSyncClosed is returned by GetEvent after the streamer has been closed or has
	// surfaced a fatal error.
	ErrSyncClosed = errors.New("sync was closed")
)

// MyError represents an ERR_Packet returned by the server during the handshake or a
// SHOW/SET statement issued by the query-executor collaborator.
type MyError struct {
	Code    uint16
	State   string
	Message string
}

func (e *MyError) Error() string {
	return "ERROR " + itoa(e.Code) + " (" + e.State + "): " + e.Message
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
