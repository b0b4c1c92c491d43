// Package utils holds the small byte/time/pool helpers the client and replication
// packages lean on: zero-copy byte/string conversions, a pooled growable buffer, and a
// single clock seam.
package utils

import (
	"sync"
	"time"
	"unsafe"
)

// ByteSliceToString converts a []byte to a string without copying, the same zero-copy
// idiom used throughout this corpus (e.g. the siddontang/go "hack" package).
// The caller must not mutate b after the call.
func ByteSliceToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToByteSlice is the inverse zero-copy conversion; the returned slice must not be
// mutated or retained past the lifetime of s.
func StringToByteSlice(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Now exists purely so call sites read like the teacher's (utils.Now()) and give a single
// seam if a fake clock is ever needed in tests.
func Now() time.Time {
	return time.Now()
}

// ByteSlice is a pooled, growable byte buffer: B is the live slice, reused across
// ByteSliceGet/ByteSlicePut round-trips to avoid a fresh allocation per packet read.
type ByteSlice struct {
	B []byte
}

var byteSlicePool = sync.Pool{
	New: func() interface{} { return new(ByteSlice) },
}

// ByteSliceGet returns a pooled ByteSlice with at least capacity hint.
func ByteSliceGet(hint int) *ByteSlice {
	bs := byteSlicePool.Get().(*ByteSlice)
	if cap(bs.B) < hint {
		bs.B = make([]byte, 0, hint)
	}
	return bs
}

// ByteSlicePut returns bs to the pool. The caller must not use bs afterward.
func ByteSlicePut(bs *ByteSlice) {
	bs.B = bs.B[:0]
	byteSlicePool.Put(bs)
}
