// Package memento encodes the externalized per-field state that compression
// policies save and restore around every read or write.
//
// A memento is a short little-endian byte string. A missing memento (nil or
// empty) means the field has no history yet and the policy starts from its
// neutral state.
package memento

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/endian"
	"github.com/arloliu/deltapack/errs"
)

var engine = endian.GetLittleEndianEngine()

// Writer appends memento fields to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer appending to buf[:0].
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Reset discards written bytes, keeping capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Bytes returns the encoded memento. It aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

// Uint16 appends v in little-endian order.
func (w *Writer) Uint16(v uint16) {
	w.buf = engine.AppendUint16(w.buf, v)
}

// Uint32 appends v in little-endian order.
func (w *Writer) Uint32(v uint32) {
	w.buf = engine.AppendUint32(w.buf, v)
}

// Uint64 appends v in little-endian order.
func (w *Writer) Uint64(v uint64) {
	w.buf = engine.AppendUint64(w.buf, v)
}

// Int64 appends the two's complement bits of v.
func (w *Writer) Int64(v int64) {
	w.buf = engine.AppendUint64(w.buf, uint64(v)) //nolint: gosec
}

// Float64 appends the IEEE-754 bits of v.
func (w *Writer) Float64(v float64) {
	w.buf = engine.AppendUint64(w.buf, math.Float64bits(v))
}

// Append writes b verbatim.
func (w *Writer) Append(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bool appends 1 for true and 0 for false.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// Reader decodes memento fields. The first short read makes every later
// call return zero and Err report errs.ErrMementoCorrupt.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader returns a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first decoding error.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Done returns Err, or an error when unread bytes remain.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes", errs.ErrMementoCorrupt, len(r.data)-r.pos)
	}

	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", errs.ErrMementoCorrupt, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n

	return b
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}

	return engine.Uint16(b)
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return engine.Uint32(b)
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return engine.Uint64(b)
}

// Int64 reads a value written by Writer.Int64.
func (r *Reader) Int64() int64 {
	return int64(r.Uint64()) //nolint: gosec
}

// Float64 reads a value written by Writer.Float64.
func (r *Reader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Next returns the next n bytes, aliasing the reader's data.
func (r *Reader) Next(n int) []byte {
	return r.take(n)
}

// Bool reads a value written by Writer.Bool. Any nonzero byte is true.
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}
