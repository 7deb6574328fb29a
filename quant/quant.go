// Package quant maps bounded real values to fixed-width unsigned codes and back.
package quant

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
)

// MaxBits is the widest code a Descriptor produces.
const MaxBits = 32

// Descriptor is an immutable quantizer configuration.
type Descriptor struct {
	Min    float64
	Max    float64
	Bits   int
	Method format.QuantizeMethod
}

// New validates and returns a descriptor.
func New(lo, hi float64, bits int, method format.QuantizeMethod) (Descriptor, error) {
	d := Descriptor{Min: lo, Max: hi, Bits: bits, Method: method}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}

	return d, nil
}

// Validate reports whether the descriptor is usable.
func (d Descriptor) Validate() error {
	switch {
	case math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0):
		return fmt.Errorf("%w: non-finite range [%v,%v]", errs.ErrInvalidQuantizer, d.Min, d.Max)
	case d.Min >= d.Max:
		return fmt.Errorf("%w: min %v not below max %v", errs.ErrInvalidQuantizer, d.Min, d.Max)
	case d.Bits < 1 || d.Bits > MaxBits:
		return fmt.Errorf("%w: bits %d not in [1,%d]", errs.ErrInvalidQuantizer, d.Bits, MaxBits)
	case d.Method == format.RoundLeftWithMidpoint && d.Bits < 2:
		return fmt.Errorf("%w: %s needs at least 2 bits", errs.ErrInvalidQuantizer, d.Method)
	}

	switch d.Method {
	case format.TruncateLeft, format.TruncateCenter, format.RoundLeft, format.RoundLeftWithMidpoint, format.NeverLower:
		return nil
	default:
		return fmt.Errorf("%w: unknown method %d", errs.ErrInvalidQuantizer, d.Method)
	}
}

// MaxCode returns the largest code the descriptor emits, 2^Bits - 1.
func (d Descriptor) MaxCode() uint32 {
	return uint32(uint64(1)<<d.Bits - 1) //nolint: gosec
}

// levels returns the divisor mapping a code back onto [0,1].
func (d Descriptor) levels() float64 {
	switch d.Method {
	case format.TruncateLeft, format.TruncateCenter:
		return float64(uint64(1) << d.Bits)
	case format.RoundLeftWithMidpoint:
		// One code fewer so that the level count is even and the midpoint exact.
		return float64(uint64(1)<<d.Bits - 2)
	default:
		return float64(d.MaxCode())
	}
}

// Step returns the value distance between two adjacent codes.
func (d Descriptor) Step() float64 {
	return (d.Max - d.Min) / d.levels()
}

// Quantize maps v onto a code. Values outside [Min,Max] are clamped and NaN
// maps to the midpoint code.
func (d Descriptor) Quantize(v float64) uint32 {
	var scaled float64
	switch {
	case math.IsNaN(v):
		scaled = 0.5
	case v <= d.Min:
		scaled = 0
	case v >= d.Max:
		scaled = 1
	default:
		scaled = (v - d.Min) / (d.Max - d.Min)
	}

	levels := d.levels()
	var q float64
	switch d.Method {
	case format.TruncateLeft, format.TruncateCenter:
		q = math.Floor(scaled * levels)
	case format.RoundLeft, format.RoundLeftWithMidpoint:
		q = math.Round(scaled * levels)
	case format.NeverLower:
		q = math.Ceil(scaled * levels)
	}
	q = min(max(q, 0), levels)

	code := uint32(min(q, float64(d.MaxCode())))
	if d.Method == format.NeverLower && !math.IsNaN(v) {
		for code < d.MaxCode() && d.Dequantize(code) < v {
			code++
		}
	}

	return code
}

// Dequantize maps a code back to a value. Codes above MaxCode are clamped.
func (d Descriptor) Dequantize(code uint32) float64 {
	code = min(code, d.MaxCode())

	levels := d.levels()
	frac := float64(code)
	if d.Method == format.TruncateCenter {
		frac += 0.5
	}
	frac = min(frac/levels, 1)

	return d.Min + frac*(d.Max-d.Min)
}

// Midpoint returns the code nearest to the middle of the range.
func (d Descriptor) Midpoint() uint32 {
	return d.Quantize(d.Min + (d.Max-d.Min)/2)
}
