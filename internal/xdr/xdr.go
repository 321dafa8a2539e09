// Package xdr provides big-endian binary encoding and decoding utilities
// for reading and writing ICNS file data.
//
// ICNS uses big-endian byte order for all multi-byte values throughout
// the file format. This package provides efficient, bounds-checked readers
// and writers for the primitive types used in ICNS files.
package xdr

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read operation cannot complete
	// because there isn't enough data in the buffer.
	ErrShortBuffer = errors.New("xdr: buffer too short")

	// ErrNegativeSize is returned when a size parameter is negative.
	ErrNegativeSize = errors.New("xdr: negative size")
)

// ByteOrder is the byte order used by ICNS files.
var ByteOrder = binary.BigEndian

// Reader provides efficient big-endian binary reading from a byte slice.
// It maintains a read position and provides bounds checking on all operations.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, pos: 0}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

// Reset resets the reader to the beginning of the data.
func (r *Reader) Reset() {
	r.pos = 0
}

// SetPos sets the read position. Returns an error if the position is out of bounds.
func (r *Reader) SetPos(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return ErrShortBuffer
	}
	r.pos = pos
	return nil
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrShortBuffer
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	result := make([]byte, n)
	copy(result, r.data[r.pos:r.pos+n])
	r.pos += n
	return result, nil
}

// ReadBytesInto reads len(dst) bytes into the provided slice.
func (r *Reader) ReadBytesInto(dst []byte) error {
	n := len(dst)
	if r.pos+n > len(r.data) {
		return ErrShortBuffer
	}
	copy(dst, r.data[r.pos:r.pos+n])
	r.pos += n
	return nil
}

// ReadUint32 reads an unsigned 32-bit integer in big-endian order.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrShortBuffer
	}
	v := ByteOrder.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadFloat32 reads a 32-bit IEEE 754 floating-point number.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// BufferWriter provides a growing buffer for writing binary data.
// It automatically expands to accommodate writes.
type BufferWriter struct {
	buf []byte
}

// NewBufferWriter creates a BufferWriter with an initial capacity.
func NewBufferWriter(capacity int) *BufferWriter {
	return &BufferWriter{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written.
func (w *BufferWriter) Len() int {
	return len(w.buf)
}

// Bytes returns the written data as a byte slice.
// The returned slice is valid until the next write operation.
func (w *BufferWriter) Bytes() []byte {
	return w.buf
}

// Reset clears the buffer.
func (w *BufferWriter) Reset() {
	w.buf = w.buf[:0]
}

// WriteByte writes a single byte.
func (w *BufferWriter) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBytes writes a byte slice.
func (w *BufferWriter) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteUint32 writes an unsigned 32-bit integer in big-endian order.
func (w *BufferWriter) WriteUint32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteFloat32 writes a 32-bit IEEE 754 floating-point number.
func (w *BufferWriter) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}
