// Package bitio provides the MSB-first bit sink and source used by the
// arithmetic coder.
//
// Bits accumulate in a 64-bit register and are flushed to a pooled byte
// buffer in big-endian order, so the first bit written is the most
// significant bit of the first byte.
package bitio

import (
	"encoding/binary"

	"github.com/arloliu/deltapack/internal/pool"
)

// Writer accumulates bits and flushes them to a byte buffer.
type Writer struct {
	bitBuf   uint64 // pending bits, right-aligned
	bitCount int    // number of valid bits in bitBuf
	written  int    // total bits written

	buf *pool.ByteBuffer
}

// NewWriter creates a Writer backed by a pooled stream buffer.
func NewWriter() *Writer {
	return &Writer{buf: pool.GetStreamBuffer()}
}

// WriteBit writes the low bit of bit.
func (w *Writer) WriteBit(bit uint32) {
	w.bitBuf = (w.bitBuf << 1) | uint64(bit&1)
	w.bitCount++
	w.written++

	if w.bitCount == 64 {
		w.flushBits()
	}
}

// WriteBits writes the numBits least significant bits of value, most
// significant first.
//
// Parameters:
//   - value: the bits to write (only the least significant 'numBits' are used)
//   - numBits: number of bits to write (0-64)
func (w *Writer) WriteBits(value uint64, numBits int) {
	if numBits <= 0 {
		return
	}

	if numBits < 64 {
		value &= (1 << numBits) - 1
	}
	w.written += numBits

	available := 64 - w.bitCount
	if numBits <= available {
		if numBits == 64 {
			w.bitBuf = value
		} else {
			w.bitBuf = (w.bitBuf << numBits) | value
		}
		w.bitCount += numBits

		if w.bitCount == 64 {
			w.flushBits()
		}

		return
	}

	// Split across the register boundary.
	highBits := numBits - available
	w.bitBuf = (w.bitBuf << available) | (value >> highBits)
	w.bitCount = 64
	w.flushBits()

	w.bitBuf = value & ((1 << highBits) - 1)
	w.bitCount = highBits
}

// BitsWritten returns the number of bits written so far.
func (w *Writer) BitsWritten() int {
	return w.written
}

// Bytes flushes pending bits, zero padding the last byte, and returns the
// underlying buffer. The slice is valid until the next write or Release.
func (w *Writer) Bytes() []byte {
	if w.bitCount > 0 {
		w.flushBits()
	}

	return w.buf.Bytes()
}

// Release returns the buffer to the pool. The Writer must not be used afterwards.
func (w *Writer) Release() {
	if w.buf == nil {
		return
	}

	pool.PutStreamBuffer(w.buf)
	w.buf = nil
}

// flushBits appends the pending bits to the buffer, left-aligned to a byte boundary.
func (w *Writer) flushBits() {
	if w.bitCount == 0 {
		return
	}

	numBytes := (w.bitCount + 7) / 8
	alignedBits := w.bitBuf << (64 - w.bitCount)

	startLen := w.buf.Len()
	w.buf.ExtendOrGrow(numBytes)
	bs := w.buf.Slice(startLen, startLen+numBytes)

	if numBytes == 8 {
		binary.BigEndian.PutUint64(bs, alignedBits)
	} else {
		for i := range numBytes {
			bs[i] = byte(alignedBits >> (56 - i*8))
		}
	}

	w.bitBuf = 0
	w.bitCount = 0
}

// Reader reads bits MSB-first from a byte slice.
//
// Reading past the end yields zero bits; Overrun reports how many such
// padding bits were consumed.
type Reader struct {
	data     []byte
	bytePos  int
	bitBuf   uint64 // left-aligned
	bitCount int
	overrun  int
	consumed int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() uint32 {
	r.consumed++
	if r.bitCount == 0 && !r.fillBuffer() {
		r.overrun++
		return 0
	}

	bit := uint32(r.bitBuf >> 63)
	r.bitBuf <<= 1
	r.bitCount--

	return bit
}

// ReadBits reads numBits bits (0-64) and returns them right-aligned.
func (r *Reader) ReadBits(numBits int) uint64 {
	var result uint64
	for numBits > 0 {
		if r.bitCount == 0 && !r.fillBuffer() {
			// Remaining bits are implicit zero padding.
			r.overrun += numBits
			r.consumed += numBits
			if numBits < 64 {
				result <<= numBits
			} else {
				result = 0
			}

			return result
		}

		take := min(numBits, r.bitCount)
		chunk := r.bitBuf >> (64 - take)
		if take == 64 {
			result = chunk
		} else {
			result = (result << take) | chunk
		}
		if take == 64 {
			r.bitBuf = 0
		} else {
			r.bitBuf <<= take
		}
		r.bitCount -= take
		r.consumed += take
		numBits -= take
	}

	return result
}

// Overrun returns the number of padding bits read past the end of data.
func (r *Reader) Overrun() int {
	return r.overrun
}

// BitsRead returns the number of bits consumed, including padding.
func (r *Reader) BitsRead() int {
	return r.consumed
}

// fillBuffer refills the bit register from the byte stream.
func (r *Reader) fillBuffer() bool {
	if r.bytePos >= len(r.data) {
		return false
	}

	bytesToRead := min(8, len(r.data)-r.bytePos)
	if bytesToRead == 8 {
		r.bitBuf = binary.BigEndian.Uint64(r.data[r.bytePos : r.bytePos+8])
		r.bytePos += 8
		r.bitCount = 64

		return true
	}

	r.bitBuf = 0
	for range bytesToRead {
		r.bitBuf = (r.bitBuf << 8) | uint64(r.data[r.bytePos])
		r.bytePos++
	}
	r.bitBuf <<= (8 - bytesToRead) * 8
	r.bitCount = bytesToRead * 8

	return true
}
