package arith

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/internal/bitio"
)

const (
	// MaxTotal is the largest frequency total accepted by Encode and Decode.
	MaxTotal = 1 << 16

	half    = uint32(1) << 31
	quarter = uint32(1) << 30

	digitBits = 16
)

// Encoder is the write side of the range coder.
type Encoder struct {
	low       uint32
	high      uint32 // inclusive
	pending   uint32 // underflow bits awaiting the next settled bit
	symbols   int
	entropy   float64
	finished  bool
	bits      *bitio.Writer
	finalData []byte
}

// NewEncoder creates an encoder writing to a pooled buffer.
func NewEncoder() *Encoder {
	return &Encoder{
		high: math.MaxUint32,
		bits: bitio.NewWriter(),
	}
}

func checkRange(total, low, size uint32) error {
	if total == 0 || total > MaxTotal || size == 0 || uint64(low)+uint64(size) > uint64(total) {
		return fmt.Errorf("%w: total=%d low=%d size=%d", errs.ErrInvalidFrequency, total, low, size)
	}

	return nil
}

// Encode writes a symbol occupying [low, low+size) out of total.
//
// Returns errs.ErrInvalidFrequency if the range is empty, exceeds total, or
// total exceeds MaxTotal.
func (e *Encoder) Encode(total, low, size uint32) error {
	if e.finished {
		panic("arith: encode after Finish")
	}
	if err := checkRange(total, low, size); err != nil {
		return err
	}

	rng := uint64(e.high-e.low) + 1
	e.high = e.low + uint32(rng*uint64(low+size)/uint64(total)-1) //nolint: gosec
	e.low += uint32(rng * uint64(low) / uint64(total))            //nolint: gosec

	for {
		switch {
		case e.high&half == e.low&half:
			bit := e.high >> 31
			e.bits.WriteBit(bit)
			for ; e.pending > 0; e.pending-- {
				e.bits.WriteBit(bit ^ 1)
			}
		case e.low&quarter != 0 && e.high&quarter == 0:
			// Interval straddles the midpoint inside [1/4, 3/4): defer the bit.
			e.pending++
			e.low &= quarter - 1
			e.high |= quarter
		default:
			e.symbols++
			e.entropy += math.Log2(float64(total) / float64(size))

			return nil
		}
		e.low <<= 1
		e.high = e.high<<1 | 1
	}
}

// EncodeBits writes the n (0-64) least significant bits of value as raw bits.
func (e *Encoder) EncodeBits(value uint64, n int) error {
	if n < 0 || n > 64 {
		return fmt.Errorf("%w: %d", errs.ErrInvalidBitCount, n)
	}

	for n > 0 {
		k := n % digitBits
		if k == 0 {
			k = digitBits
		}
		n -= k
		digit := uint32((value >> n) & (1<<k - 1)) //nolint: gosec
		if err := e.Encode(1<<k, digit, 1); err != nil {
			return err
		}
	}

	return nil
}

// EncodeUniform writes v with a uniform distribution over [0,n).
//
// n of 0 or 1 writes nothing.
func (e *Encoder) EncodeUniform(n, v uint64) error {
	if n <= 1 {
		if v != 0 && n == 1 {
			return fmt.Errorf("%w: %d not in [0,%d)", errs.ErrValueOutOfRange, v, n)
		}

		return nil
	}
	if v >= n {
		return fmt.Errorf("%w: %d not in [0,%d)", errs.ErrValueOutOfRange, v, n)
	}
	if n <= MaxTotal {
		return e.Encode(uint32(n), uint32(v), 1) //nolint: gosec
	}

	hi, lo := v>>digitBits, uint32(v&(MaxTotal-1)) //nolint: gosec
	hiN := ((n - 1) >> digitBits) + 1
	if err := e.EncodeUniform(hiN, hi); err != nil {
		return err
	}

	return e.Encode(lastDigitTotal(n, hi, hiN), lo, 1)
}

// lastDigitTotal returns the number of low digits available under high digit hi.
func lastDigitTotal(n, hi, hiN uint64) uint32 {
	if hi == hiN-1 {
		return uint32((n-1)&(MaxTotal-1)) + 1 //nolint: gosec
	}

	return MaxTotal
}

// EncodeBool writes a binary decision where true carries weight trueWeight out of total.
func (e *Encoder) EncodeBool(v bool, trueWeight, total uint32) error {
	if v {
		return e.Encode(total, 0, trueWeight)
	}

	return e.Encode(total, trueWeight, total-trueWeight)
}

// Symbols returns the number of symbols encoded so far.
func (e *Encoder) Symbols() int {
	return e.symbols
}

// Entropy returns the information content, in bits, of every symbol encoded
// so far. It is the model-side size estimate used for profiling.
func (e *Encoder) Entropy() float64 {
	return e.entropy
}

// BitCount returns the number of bits the stream would occupy if finished now.
func (e *Encoder) BitCount() int {
	if e.finished {
		return len(e.finalData) * 8
	}

	return e.bits.BitsWritten() + int(e.pending) + 2
}

// Finish terminates the stream and returns the encoded bytes.
//
// The returned slice stays valid until Release. Finish is idempotent.
func (e *Encoder) Finish() []byte {
	if e.finished {
		return e.finalData
	}

	// Two more bits select a value inside [low, high] regardless of the zero
	// padding the decoder reads afterwards.
	e.pending++
	bit := uint32(0)
	if e.low >= quarter {
		bit = 1
	}
	e.bits.WriteBit(bit)
	for ; e.pending > 0; e.pending-- {
		e.bits.WriteBit(bit ^ 1)
	}

	e.finished = true
	e.finalData = e.bits.Bytes()

	return e.finalData
}

// Release returns the output buffer to the pool. Bytes returned by Finish
// must not be used afterwards.
func (e *Encoder) Release() {
	e.bits.Release()
	e.finalData = nil
}
