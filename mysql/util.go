package mysql

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pingcap/errors"
)

// LengthEncodedInt reads a length-encoded integer, per the MySQL client/server protocol:
// 0..250 is a one-byte value; 0xfb marks SQL NULL; 0xfc/0xfd/0xfe prefix a 2/3/8-byte LE
// integer. Returns the value, whether it was NULL, and the number of bytes consumed.
func LengthEncodedInt(b []byte) (num uint64, isNull bool, n int) {
	if len(b) == 0 {
		return 0, true, 0
	}

	switch b[0] {
	case 0xfb:
		return 0, true, 1
	case 0xfc:
		if len(b) < 3 {
			return 0, true, 0
		}
		return uint64(b[1]) | uint64(b[2])<<8, false, 3
	case 0xfd:
		if len(b) < 4 {
			return 0, true, 0
		}
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16, false, 4
	case 0xfe:
		if len(b) < 9 {
			return 0, true, 0
		}
		return binary.LittleEndian.Uint64(b[1:9]), false, 9
	}

	return uint64(b[0]), false, 1
}

// LengthEncodedString reads a length-encoded byte string: a LengthEncodedInt length prefix
// followed by that many bytes. Returns ErrMalformPacket if the declared length runs past
// the buffer.
func LengthEncodedString(b []byte) ([]byte, bool, int, error) {
	num, isNull, n := LengthEncodedInt(b)
	if num < 1 {
		return nil, isNull, n, nil
	}

	n += int(num)

	if len(b) >= n {
		return b[n-int(num) : n], false, n, nil
	}

	return nil, false, n, errors.Trace(ErrMalformPacket)
}

// PutLengthEncodedInt encodes n in the length-encoded-integer wire format.
func PutLengthEncodedInt(n uint64) []byte {
	switch {
	case n <= 250:
		return []byte{byte(n)}
	case n <= 0xffff:
		return []byte{0xfc, byte(n), byte(n >> 8)}
	case n <= 0xffffff:
		return []byte{0xfd, byte(n), byte(n >> 8), byte(n >> 16)}
	default:
		return []byte{0xfe, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24),
			byte(n >> 32), byte(n >> 40), byte(n >> 48), byte(n >> 56)}
	}
}

// PutLengthEncodedString encodes b as a length-prefixed byte string.
func PutLengthEncodedString(b []byte) []byte {
	data := make([]byte, 0, len(b)+9)
	data = append(data, PutLengthEncodedInt(uint64(len(b)))...)
	return append(data, b...)
}

// FixedLengthInt decodes a little-endian unsigned integer occupying exactly len(b) bytes,
// 1..8 wide. Used for GTIDEvent's 7-byte commit-timestamp fields.
func FixedLengthInt(b []byte) uint64 {
	var n uint64
	for i, v := range b {
		n |= uint64(v) << (uint(i) * 8)
	}
	return n
}

// BFixedLengthInt decodes a big-endian unsigned integer occupying exactly len(b) bytes.
// Row-event temporal/BIT/DATE fields are packed big-endian.
func BFixedLengthInt(b []byte) uint64 {
	var n uint64
	for i := 0; i < len(b); i++ {
		n <<= 8
		n |= uint64(b[i])
	}
	return n
}

// ParseBinaryInt16/Uint16/... decode fixed-width little-endian integers of a given width,
// used by the JSON binary codec for inline-value decoding. Callers are responsible for
// slicing to the declared width first; these are total functions over a sufficient buffer.
func ParseBinaryInt8(data []byte) int8 {
	return int8(data[0])
}

func ParseBinaryUint8(data []byte) uint8 {
	return data[0]
}

func ParseBinaryInt16(data []byte) int16 {
	return int16(binary.LittleEndian.Uint16(data))
}

func ParseBinaryUint16(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data)
}

func ParseBinaryInt24(data []byte) int32 {
	u32 := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	if u32&0x00800000 != 0 {
		u32 |= 0xFF000000
	}
	return int32(u32)
}

func ParseBinaryUint24(data []byte) uint32 {
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
}

func ParseBinaryInt32(data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(data))
}

func ParseBinaryUint32(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data)
}

func ParseBinaryInt64(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data))
}

func ParseBinaryUint64(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}

func ParseBinaryFloat32(data []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data))
}

func ParseBinaryFloat64(data []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(data))
}

// compressionDiscriminator values prefixed onto a compressed payload so the reader can
// auto-select the decompressor, per spec §4.1. These are this module's own framing (MySQL
// itself picks the algorithm out of band, e.g. MariaDB's FL_COMPRESSED row-event flag or
// TransactionPayload's explicit compression-type TLV field); NewCompressedReader exists so
// both call sites share one implementation.
const (
	CompressionZlib byte = 0
	CompressionZstd byte = 1
	CompressionNone byte = 2
)

// NewCompressedReader wraps data, whose first byte is a compressionDiscriminator, with a
// reader transparently producing the decompressed byte stream.
func NewCompressedReader(data []byte) (io.Reader, error) {
	if len(data) == 0 {
		return bytes.NewReader(nil), nil
	}

	kind, body := data[0], data[1:]
	switch kind {
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return r, nil
	case CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return readCloserFromZstd(r), nil
	case CompressionNone:
		return bytes.NewReader(body), nil
	default:
		return nil, errors.Errorf("unknown compression discriminator %d", kind)
	}
}

func readCloserFromZstd(d *zstd.Decoder) io.Reader {
	return &zstdReaderAdapter{d: d}
}

type zstdReaderAdapter struct {
	d *zstd.Decoder
}

func (a *zstdReaderAdapter) Read(p []byte) (int, error) {
	return a.d.Read(p)
}

// DecompressZstd decompresses a raw zstd frame (no discriminator byte), used for
// TransactionPayload (§4.9) whose compression type is carried in an explicit TLV field
// rather than a leading discriminator byte.
func DecompressZstd(data []byte) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer d.Close()

	out, err := d.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

// DecompressMariadbData decompresses a MariaDB QUERY_COMPRESSED_EVENT/compressed-binlog
// payload, which is a raw zlib stream (no discriminator byte, no length prefix beyond the
// event's own header).
func DecompressMariadbData(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}
