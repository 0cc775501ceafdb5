package warpdrive

import (
	"encoding/binary"
	"math"
)

// Ptr addresses caller-owned memory: a byte slice and an offset into it.
// The zero Ptr is the null pointer. Multi-byte values are little-endian,
// and SQLLEN/SQLULEN values are 8 bytes wide.
type Ptr struct {
	buf []byte
	off int
}

// NewPtr returns a pointer to the first byte of buf.
func NewPtr(buf []byte) Ptr {
	if buf == nil {
		buf = []byte{}
	}
	return Ptr{buf: buf}
}

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool {
	return p.buf == nil
}

// Add returns p advanced by n bytes. The null pointer stays null.
func (p Ptr) Add(n int) Ptr {
	if p.IsNull() {
		return p
	}
	return Ptr{buf: p.buf, off: p.off + n}
}

// Offset is the byte offset of p into its backing memory.
func (p Ptr) Offset() int {
	return p.off
}

// Cap is the number of addressable bytes from p to the end of its memory.
func (p Ptr) Cap() int {
	if p.IsNull() || p.off >= len(p.buf) {
		return 0
	}
	return len(p.buf) - p.off
}

// Same reports whether p and q address the same byte.
func (p Ptr) Same(q Ptr) bool {
	if p.IsNull() || q.IsNull() {
		return p.IsNull() && q.IsNull()
	}
	if p.off != q.off || len(p.buf) != len(q.buf) {
		return false
	}
	if len(p.buf) == 0 {
		return true
	}
	return &p.buf[0] == &q.buf[0]
}

// Bytes returns the n bytes starting at p. A negative n returns all bytes
// up to the end of the memory.
func (p Ptr) Bytes(n int) []byte {
	if n < 0 {
		return p.buf[p.off:]
	}
	return p.buf[p.off : p.off+n]
}

func (p Ptr) Uint8() uint8       { return p.buf[p.off] }
func (p Ptr) PutUint8(v uint8)   { p.buf[p.off] = v }
func (p Ptr) Int8() int8         { return int8(p.buf[p.off]) }
func (p Ptr) PutInt8(v int8)     { p.buf[p.off] = byte(v) }
func (p Ptr) Uint16() uint16     { return binary.LittleEndian.Uint16(p.Bytes(2)) }
func (p Ptr) PutUint16(v uint16) { binary.LittleEndian.PutUint16(p.Bytes(2), v) }
func (p Ptr) Int16() int16       { return int16(p.Uint16()) }
func (p Ptr) PutInt16(v int16)   { p.PutUint16(uint16(v)) }
func (p Ptr) Uint32() uint32     { return binary.LittleEndian.Uint32(p.Bytes(4)) }
func (p Ptr) PutUint32(v uint32) { binary.LittleEndian.PutUint32(p.Bytes(4), v) }
func (p Ptr) Int32() int32       { return int32(p.Uint32()) }
func (p Ptr) PutInt32(v int32)   { p.PutUint32(uint32(v)) }
func (p Ptr) Uint64() uint64     { return binary.LittleEndian.Uint64(p.Bytes(8)) }
func (p Ptr) PutUint64(v uint64) { binary.LittleEndian.PutUint64(p.Bytes(8), v) }
func (p Ptr) Int64() int64       { return int64(p.Uint64()) }
func (p Ptr) PutInt64(v int64)   { p.PutUint64(uint64(v)) }

func (p Ptr) Float32() float32     { return math.Float32frombits(p.Uint32()) }
func (p Ptr) PutFloat32(v float32) { p.PutUint32(math.Float32bits(v)) }
func (p Ptr) Float64() float64     { return math.Float64frombits(p.Uint64()) }
func (p Ptr) PutFloat64(v float64) { p.PutUint64(math.Float64bits(v)) }

// Len reads an SQLLEN value. The null pointer reads as zero.
func (p Ptr) Len() int64 {
	if p.IsNull() {
		return 0
	}
	return p.Int64()
}

// PutLen writes an SQLLEN value unless p is null.
func (p Ptr) PutLen(v int64) {
	if !p.IsNull() {
		p.PutInt64(v)
	}
}

// cstring returns the bytes at p up to the first NUL, reading at most max
// bytes when max is non-negative.
func (p Ptr) cstring(max int) []byte {
	b := p.Bytes(-1)
	if max >= 0 && max < len(b) {
		b = b[:max]
	}
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// Alloc returns a pointer to n bytes of zeroed memory.
func Alloc(n int) Ptr {
	return NewPtr(make([]byte, n))
}
