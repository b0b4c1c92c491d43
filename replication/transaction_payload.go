package replication

import (
	"fmt"
	"io"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// Transaction payload TLV field tags, per spec §4.9.
const (
	tpltEOF             byte = 0
	tpltPayloadSize     byte = 1
	tpltCompressionType byte = 2
	tpltUncompressedSize byte = 3
)

// Transaction payload compression type codes.
const (
	TransactionPayloadCompressionZSTD byte = 0
	TransactionPayloadCompressionNone byte = 255
)

// TransactionPayloadEvent is MySQL 8.0's grouped-commit envelope: a TLV header followed by
// a (usually zstd-compressed) concatenation of the transaction's inner binlog events, per
// spec §4.9.
type TransactionPayloadEvent struct {
	Size             uint64
	UncompressedSize uint64
	CompressionType  byte

	// Events holds the decoded inner events, re-parsed with checksums forced off (inner
	// events never carry their own CRC trailer).
	Events []*BinlogEvent

	// formatDescription is the outer parser's current FormatDescriptionEvent, used to seed
	// the nested parser; unexported because it is wired in by BinlogParser, not read off
	// the wire.
	formatDescription *FormatDescriptionEvent
}

func (e *TransactionPayloadEvent) Decode(data []byte) error {
	pos := 0
	var payload []byte

	for pos < len(data) {
		tag := data[pos]
		pos++

		if tag == tpltEOF {
			break
		}

		fieldLen, _, n := mysql.LengthEncodedInt(data[pos:])
		pos += n

		if pos+int(fieldLen) > len(data) {
			return errors.Trace(mysql.ErrMalformedEvent)
		}
		fieldData := data[pos : pos+int(fieldLen)]

		switch tag {
		case tpltPayloadSize:
			e.Size = mysql.FixedLengthInt(fieldData)
			payload = data[pos+int(fieldLen):]
		case tpltCompressionType:
			v := mysql.FixedLengthInt(fieldData)
			e.CompressionType = byte(v)
		case tpltUncompressedSize:
			e.UncompressedSize = mysql.FixedLengthInt(fieldData)
		default:
			// Unknown/future tags are skipped, not fatal: the envelope is meant to be
			// forward-extensible.
			pos += int(fieldLen)
			continue
		}

		pos += int(fieldLen)
	}

	if payload == nil {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	if uint64(len(payload)) < e.Size {
		return errors.Trace(mysql.ErrMalformedEvent)
	}
	payload = payload[:e.Size]

	var body []byte
	var err error
	switch e.CompressionType {
	case TransactionPayloadCompressionZSTD:
		body, err = mysql.DecompressZstd(payload)
		if err != nil {
			return errors.Trace(err)
		}
	case TransactionPayloadCompressionNone:
		body = payload
	default:
		return errors.Trace(mysql.ErrMalformedEvent)
	}

	return e.decodeInnerEvents(body)
}

// decodeInnerEvents re-parses the decompressed stream with a nested BinlogParser seeded
// with the outer parser's current FormatDescription, checksum verification forced off.
func (e *TransactionPayloadEvent) decodeInnerEvents(body []byte) error {
	inner := NewBinlogParser()
	inner.verifyChecksum = false
	if e.formatDescription != nil {
		fd := *e.formatDescription
		fd.ChecksumAlgorithm = mysql.BINLOG_CHECKSUM_ALG_OFF
		inner.format = &fd
	}

	pos := 0
	for pos < len(body) {
		ev, n, err := inner.parseEvent(body[pos:])
		if err != nil {
			return errors.Trace(err)
		}
		if n <= 0 {
			break
		}
		e.Events = append(e.Events, ev)
		pos += n
	}

	return nil
}

func (e *TransactionPayloadEvent) Dump(w io.Writer) {
	fmt.Fprintf(w, "Payload size: %d\n", e.Size)
	fmt.Fprintf(w, "Uncompressed size: %d\n", e.UncompressedSize)
	fmt.Fprintf(w, "Compression type: %d\n", e.CompressionType)
	fmt.Fprintf(w, "Inner event count: %d\n", len(e.Events))
	fmt.Fprintln(w)
}
