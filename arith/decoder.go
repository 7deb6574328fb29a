package arith

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/internal/bitio"
)

// paddingSlack is the number of zero bits the decoder may read past the end
// of its input. The encoder's termination leaves the decoder 30 bits short.
const paddingSlack = 32

// Decoder is the read side of the range coder.
type Decoder struct {
	low  uint32
	high uint32 // inclusive
	code uint32
	err  error
	bits *bitio.Reader
}

// NewDecoder creates a decoder over data produced by Encoder.Finish.
func NewDecoder(data []byte) *Decoder {
	d := &Decoder{
		high: math.MaxUint32,
		bits: bitio.NewReader(data),
	}
	d.code = uint32(d.bits.ReadBits(32)) //nolint: gosec

	return d
}

// Err returns the sticky error of the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Decode returns a target in [0,total) identifying the next symbol.
//
// The caller maps the target to the symbol whose range contains it and must
// then call Update with that symbol's range.
func (d *Decoder) Decode(total uint32) (uint32, error) {
	if d.err != nil {
		return 0, d.err
	}
	if total == 0 || total > MaxTotal {
		return 0, fmt.Errorf("%w: total=%d", errs.ErrInvalidFrequency, total)
	}

	rng := uint64(d.high-d.low) + 1
	target := ((uint64(d.code-d.low)+1)*uint64(total) - 1) / rng

	return uint32(target), nil //nolint: gosec
}

// Update consumes the symbol occupying [low, low+size) out of total.
func (d *Decoder) Update(total, low, size uint32) error {
	if d.err != nil {
		return d.err
	}
	if err := checkRange(total, low, size); err != nil {
		return err
	}

	rng := uint64(d.high-d.low) + 1
	d.high = d.low + uint32(rng*uint64(low+size)/uint64(total)-1) //nolint: gosec
	d.low += uint32(rng * uint64(low) / uint64(total))            //nolint: gosec

	for {
		switch {
		case d.high&half == d.low&half:
		case d.low&quarter != 0 && d.high&quarter == 0:
			d.code ^= quarter
			d.low &= quarter - 1
			d.high |= quarter
		default:
			if d.bits.Overrun() > paddingSlack {
				d.err = fmt.Errorf("%w: read %d bits past end", errs.ErrBufferExhausted, d.bits.Overrun())
				return d.err
			}

			return nil
		}
		d.low <<= 1
		d.high = d.high<<1 | 1
		d.code = d.code<<1 | d.bits.ReadBit()
	}
}

// DecodeSymbol decodes a target and immediately confirms it as a one-wide
// symbol. It is the common case for flat distributions.
func (d *Decoder) DecodeSymbol(total uint32) (uint32, error) {
	target, err := d.Decode(total)
	if err != nil {
		return 0, err
	}
	if err := d.Update(total, target, 1); err != nil {
		return 0, err
	}

	return target, nil
}

// DecodeBits reads n (0-64) raw bits written by Encoder.EncodeBits.
func (d *Decoder) DecodeBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("%w: %d", errs.ErrInvalidBitCount, n)
	}

	var value uint64
	for n > 0 {
		k := n % digitBits
		if k == 0 {
			k = digitBits
		}
		n -= k
		digit, err := d.DecodeSymbol(1 << k)
		if err != nil {
			return 0, err
		}
		value |= uint64(digit) << n
	}

	return value, nil
}

// DecodeUniform reads a value written by Encoder.EncodeUniform with the same n.
func (d *Decoder) DecodeUniform(n uint64) (uint64, error) {
	if n <= 1 {
		return 0, nil
	}
	if n <= MaxTotal {
		v, err := d.DecodeSymbol(uint32(n)) //nolint: gosec

		return uint64(v), err
	}

	hiN := ((n - 1) >> digitBits) + 1
	hi, err := d.DecodeUniform(hiN)
	if err != nil {
		return 0, err
	}
	lo, err := d.DecodeSymbol(lastDigitTotal(n, hi, hiN))
	if err != nil {
		return 0, err
	}

	return hi<<digitBits | uint64(lo), nil
}

// DecodeBool reads a decision written by Encoder.EncodeBool with the same weights.
func (d *Decoder) DecodeBool(trueWeight, total uint32) (bool, error) {
	target, err := d.Decode(total)
	if err != nil {
		return false, err
	}
	if target < trueWeight {
		return true, d.Update(total, 0, trueWeight)
	}

	return false, d.Update(total, trueWeight, total-trueWeight)
}

// BitsRead returns the number of stream bits consumed so far.
func (d *Decoder) BitsRead() int {
	return d.bits.BitsRead()
}
