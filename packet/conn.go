// Package packet implements the MySQL client/server wire framing: length-prefixed
// packets with a 1-byte rolling sequence number, optional 16MB-boundary splitting, and
// an optional zlib/zstd compressed-packet layer. It backs both the query executor
// (client.Conn) and the binlog dump reader (replication.BinlogSyncer), which is why it
// lives as its own package rather than inside client: both collaborators only need the
// PacketConn shape described in the consumer API, not each other's machinery.
package packet

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"time"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

const (
	// maxPacketSize is the 16MB-1 boundary at which one logical packet must be split
	// into multiple physical packets on the wire.
	maxPacketSize = 1<<24 - 1

	headerSize           = 4
	compressedHeaderSize = 7
)

// CompressionAlgorithm selects the wire-compression codec negotiated for this
// connection, if any.
type CompressionAlgorithm int

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionZlib
	CompressionZstd
)

// Conn wraps a net.Conn with MySQL's packet framing. It is safe for one reader and one
// writer goroutine at a time, matching how client.Conn and BinlogSyncer use it (never
// concurrently from both a reader and a writer).
type Conn struct {
	net.Conn

	br *bufio.Reader
	bw *bufio.Writer

	sequence byte

	compression       CompressionAlgorithm
	compressSequence  byte
	compressReadBuf   []byte
}

// NewConn wraps an already-established net.Conn.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		Conn: c,
		br:   bufio.NewReaderSize(c, 16*1024),
		bw:   bufio.NewWriterSize(c, 16*1024),
	}
}

// SetCompression enables wire-level packet compression after the handshake has
// negotiated it; algo is whichever codec the server accepted.
func (c *Conn) SetCompression(algo CompressionAlgorithm) {
	c.compression = algo
	c.compressSequence = 0
}

// ResetSequence resets the packet sequence counter, done at the start of each new
// command per the MySQL protocol.
func (c *Conn) ResetSequence() {
	c.sequence = 0
}

// ReadPacket reads one logical (possibly multi-physical-packet) MySQL packet and
// returns a freshly allocated copy of its payload.
func (c *Conn) ReadPacket() ([]byte, error) {
	return c.ReadPacketReuseMem(nil)
}

// ReadPacketReuseMem is like ReadPacket but appends into dst's backing array when it
// has spare capacity, avoiding an allocation on the hot path.
func (c *Conn) ReadPacketReuseMem(dst []byte) ([]byte, error) {
	if c.compression != CompressionNone {
		return c.readCompressedPacket(dst)
	}
	return c.readPlainPacket(dst)
}

func (c *Conn) readPlainPacket(dst []byte) ([]byte, error) {
	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(c.br, header); err != nil {
			return nil, errors.Trace(mysql.ErrBadConn)
		}

		length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
		seq := header[3]
		if seq != c.sequence {
			return nil, errors.Trace(mysql.ErrProtocolFraming)
		}
		c.sequence++

		if cap(dst)-len(dst) < length {
			grown := make([]byte, len(dst), len(dst)+length)
			copy(grown, dst)
			dst = grown
		}
		start := len(dst)
		dst = dst[:start+length]
		if _, err := io.ReadFull(c.br, dst[start:]); err != nil {
			return nil, errors.Trace(mysql.ErrBadConn)
		}

		if length < maxPacketSize {
			return dst, nil
		}
		// a full-size packet means more physical packets follow for the same logical
		// packet; loop and append.
	}
}

// readCompressedPacket unwraps the MySQL compressed-packet envelope (3-byte compressed
// length, 1-byte sequence, 3-byte uncompressed length) around one or more plain packets,
// then delegates to readPlainPacket against the decompressed stream.
func (c *Conn) readCompressedPacket(dst []byte) ([]byte, error) {
	header := make([]byte, compressedHeaderSize)
	if _, err := io.ReadFull(c.br, header); err != nil {
		return nil, errors.Trace(mysql.ErrBadConn)
	}

	compLen := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	seq := header[3]
	uncompLen := int(header[4]) | int(header[5])<<8 | int(header[6])<<16
	if seq != c.compressSequence {
		return nil, errors.Trace(mysql.ErrProtocolFraming)
	}
	c.compressSequence++

	body := make([]byte, compLen)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, errors.Trace(mysql.ErrBadConn)
	}

	var plain []byte
	if uncompLen == 0 {
		plain = body
	} else {
		discriminator := mysql.CompressionZlib
		if c.compression == CompressionZstd {
			discriminator = mysql.CompressionZstd
		}
		r, err := mysql.NewCompressedReader(append([]byte{discriminator}, body...))
		if err != nil {
			return nil, errors.Trace(err)
		}
		plain = make([]byte, uncompLen)
		if _, err := io.ReadFull(r, plain); err != nil {
			return nil, errors.Trace(err)
		}
	}

	c.compressReadBuf = append(c.compressReadBuf[:0], plain...)
	inner := NewConn(discardConn{})
	inner.br = bufio.NewReader(bytes.NewReader(c.compressReadBuf))
	inner.sequence = c.sequence
	out, err := inner.readPlainPacket(dst)
	c.sequence = inner.sequence
	return out, err
}

// discardConn satisfies net.Conn for the inner plain-packet reader used while unwrapping
// a compressed packet; only Read-side framing is reused, so the rest is unused.
type discardConn struct{ net.Conn }

// WritePacket writes data as one or more physical packets, splitting at the 16MB-1
// boundary and terminating with a zero-length packet when the payload is an exact
// multiple of that boundary.
func (c *Conn) WritePacket(data []byte) error {
	for {
		chunk := data
		if len(chunk) > maxPacketSize {
			chunk = data[:maxPacketSize]
		}

		header := [headerSize]byte{
			byte(len(chunk)),
			byte(len(chunk) >> 8),
			byte(len(chunk) >> 16),
			c.sequence,
		}
		c.sequence++

		if _, err := c.bw.Write(header[:]); err != nil {
			return errors.Trace(mysql.ErrBadConn)
		}
		if _, err := c.bw.Write(chunk); err != nil {
			return errors.Trace(mysql.ErrBadConn)
		}

		data = data[len(chunk):]
		if len(chunk) < maxPacketSize {
			break
		}
		if len(data) == 0 {
			// exact multiple of maxPacketSize: MySQL requires a trailing empty packet
			// so the reader knows the logical packet ended.
			header = [headerSize]byte{0, 0, 0, c.sequence}
			c.sequence++
			if _, err := c.bw.Write(header[:]); err != nil {
				return errors.Trace(mysql.ErrBadConn)
			}
			break
		}
	}

	return errors.Trace(c.bw.Flush())
}

// SetDeadline sets both read and write deadlines on the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.Conn.SetDeadline(t)
}

// SetReadDeadline implements the PacketConn contract directly (net.Conn already has it,
// named here so callers depending only on the packet.Conn type can see it documented).
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	return c.Conn.Close()
}
