// Package canon implements the byte-deterministic encoding rules shared by
// every hashed structure in the engine: state roots, patch digests, commit
// hashes, and channel digests. Every integer is little-endian, every
// variable-length field is length-prefixed, and floats canonicalize NaN and
// signed zero before being written. Nothing in this package ever iterates a
// Go map; callers are responsible for sorting keys first.
package canon

import (
	"encoding/binary"
	"math"
)

// Writer accumulates a canonical byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with a small pre-allocation.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated stream. The Writer remains usable.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Tag writes a fixed ASCII domain-separation tag verbatim (no length prefix;
// tags are constants known to both encoder and decoder).
func (w *Writer) Tag(tag string) *Writer {
	w.buf = append(w.buf, tag...)
	return w
}

// Bool writes a single 0/1 byte.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

// U8 writes a single byte.
func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Raw writes bytes verbatim with no length prefix. Use only for fixed-width
// fields (hashes, ids) whose length is implicit from the schema.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Blob writes a u64 length prefix followed by the bytes.
func (w *Writer) Blob(b []byte) *Writer {
	w.U64(uint64(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// Float32 writes a canonical binary32: NaN normalizes to 0x7fc00000 and
// negative zero is not distinguished from positive zero.
func (w *Writer) Float32(v float32) *Writer {
	bits := math.Float32bits(v)
	if bits == 0x80000000 { // -0.0
		bits = 0
	}
	if v != v { // NaN
		bits = 0x7fc00000
	}
	return w.U32(bits)
}

// Float64 writes a canonical binary64: NaN normalizes to
// 0x7ff8000000000000 and negative zero is not distinguished from positive
// zero.
func (w *Writer) Float64(v float64) *Writer {
	bits := math.Float64bits(v)
	if bits == 0x8000000000000000 { // -0.0
		bits = 0
	}
	if v != v { // NaN
		bits = 0x7ff8000000000000
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], bits)
	w.buf = append(w.buf, b[:]...)
	return w
}
