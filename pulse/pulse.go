// Package pulse codes a quantized value against a predicted window.
//
// A value is coded in up to three steps:
//
//  1. An in-range flag, biased toward the window, unless the window already
//     covers the whole domain.
//  2. In range: narrow windows (at most 3 values) are coded flat; wider ones
//     through a piecewise-constant pulse peaking at the predicted center.
//  3. Out of range: a half-square search repeatedly splits the region outside
//     the window into a near and a far half, with the near half favored,
//     until MaxDepth levels have been spent; the remaining offset is then
//     written as raw fixed-width bits.
//
// Every value in the domain is encodable and the search depth is bounded.
package pulse

import (
	"fmt"
	"math/bits"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

const (
	// WeightTotal is the denominator of InRangeWeight and HalfSquareHit.
	WeightTotal = 1024

	// MaxSearchDepth caps Coder.MaxDepth.
	MaxSearchDepth = 5

	flatWindow   = 3
	segmentScale = 1 << 12
)

// Coder is an immutable pulse coder configuration.
type Coder struct {
	// Bits is the width of the value domain [0, 2^Bits).
	Bits int
	// InRangeWeight is the weight of the in-range decision out of WeightTotal.
	InRangeWeight uint32
	// CenterHeight and SideHeight are the pulse heights; tails have height 1.
	CenterHeight uint32
	SideHeight   uint32
	// HalfSquareHit is the weight of the near half out of WeightTotal.
	HalfSquareHit uint32
	// MaxDepth is the number of half-square levels before raw bits.
	MaxDepth int
}

// New returns a coder over a bits-wide domain with default shape parameters.
func New(bits int) Coder {
	return Coder{
		Bits:          bits,
		InRangeWeight: 972,
		CenterHeight:  24,
		SideHeight:    6,
		HalfSquareHit: 720,
		MaxDepth:      MaxSearchDepth,
	}
}

// Validate checks the parameter ranges.
func (c Coder) Validate() error {
	switch {
	case c.Bits < 1 || c.Bits > 64:
		return fmt.Errorf("%w: pulse bits %d", errs.ErrInvalidBitCount, c.Bits)
	case c.InRangeWeight == 0 || c.InRangeWeight >= WeightTotal:
		return fmt.Errorf("%w: in-range weight %d not in (0,%d)", errs.ErrInvalidPolicyConfig, c.InRangeWeight, WeightTotal)
	case c.HalfSquareHit == 0 || c.HalfSquareHit >= WeightTotal:
		return fmt.Errorf("%w: half-square weight %d not in (0,%d)", errs.ErrInvalidPolicyConfig, c.HalfSquareHit, WeightTotal)
	case c.CenterHeight == 0 || c.SideHeight == 0 || c.CenterHeight > 1<<10 || c.SideHeight > 1<<10:
		return fmt.Errorf("%w: pulse heights %d/%d", errs.ErrInvalidPolicyConfig, c.CenterHeight, c.SideHeight)
	case c.MaxDepth < 0 || c.MaxDepth > MaxSearchDepth:
		return fmt.Errorf("%w: search depth %d not in [0,%d]", errs.ErrInvalidPolicyConfig, c.MaxDepth, MaxSearchDepth)
	}

	return nil
}

// MaxValue returns the largest value in the domain.
func (c Coder) MaxValue() uint64 {
	if c.Bits >= 64 {
		return ^uint64(0)
	}

	return uint64(1)<<c.Bits - 1
}

// Write codes v given the predicted center and window [left,right].
func (c Coder) Write(enc *arith.Encoder, v, center, left, right uint64) error {
	maxV := c.MaxValue()
	if v > maxV {
		return fmt.Errorf("%w: %d exceeds %d-bit domain", errs.ErrValueOutOfRange, v, c.Bits)
	}
	left, right, center = c.window(center, left, right)

	inRange := v >= left && v <= right
	if left > 0 || right < maxV {
		if err := enc.EncodeBool(inRange, c.InRangeWeight, WeightTotal); err != nil {
			return err
		}
	}

	if inRange {
		if right-left < flatWindow {
			return enc.EncodeUniform(right-left+1, v-left)
		}

		var buf [5]Segment
		return writeSegments(enc, c.pulse(center, left, right, buf[:0]), v)
	}

	return c.writeOutside(enc, v, left, right)
}

// Read decodes a value written by Write with the same arguments.
func (c Coder) Read(dec *arith.Decoder, center, left, right uint64) (uint64, error) {
	maxV := c.MaxValue()
	left, right, center = c.window(center, left, right)

	inRange := true
	if left > 0 || right < maxV {
		var err error
		if inRange, err = dec.DecodeBool(c.InRangeWeight, WeightTotal); err != nil {
			return 0, err
		}
	}

	if inRange {
		if right-left < flatWindow {
			off, err := dec.DecodeUniform(right - left + 1)
			if err != nil {
				return 0, err
			}

			return left + off, nil
		}

		var buf [5]Segment
		return readSegments(dec, c.pulse(center, left, right, buf[:0]))
	}

	return c.readOutside(dec, left, right)
}

// window clamps the window into the domain and the center into the window.
func (c Coder) window(center, left, right uint64) (l, r, ctr uint64) {
	maxV := c.MaxValue()
	right = min(right, maxV)
	left = min(left, right)
	center = min(max(center, left), right)

	return left, right, center
}

// span is an inclusive interval ordered from nearest to farthest from the
// window; reversed spans lie below the window.
type span struct {
	near, far uint64
}

func (s span) width() uint64 {
	if s.near <= s.far {
		return s.far - s.near + 1
	}

	return s.near - s.far + 1
}

// split returns the near and far halves of a span at least 2 wide.
func (s span) split() (span, span) {
	half := s.width() / 2
	if s.near <= s.far {
		return span{s.near, s.near + half - 1}, span{s.near + half, s.far}
	}

	return span{s.near, s.near - half + 1}, span{s.near - half, s.far}
}

func (s span) contains(v uint64) bool {
	if s.near <= s.far {
		return v >= s.near && v <= s.far
	}

	return v <= s.near && v >= s.far
}

// offset returns the distance of v from the near end.
func (s span) offset(v uint64) uint64 {
	if s.near <= s.far {
		return v - s.near
	}

	return s.near - v
}

func (s span) at(off uint64) uint64 {
	if s.near <= s.far {
		return s.near + off
	}

	return s.near - off
}

// outside returns the regions below and above the window; ok is false for
// an empty side.
func (c Coder) outside(left, right uint64) (below, above span, hasBelow, hasAbove bool) {
	if left > 0 {
		below, hasBelow = span{left - 1, 0}, true
	}
	if right < c.MaxValue() {
		above, hasAbove = span{right + 1, c.MaxValue()}, true
	}

	return below, above, hasBelow, hasAbove
}

func (c Coder) writeOutside(enc *arith.Encoder, v, left, right uint64) error {
	below, above, hasBelow, hasAbove := c.outside(left, right)

	side := above
	if v < left {
		side = below
	}
	if hasBelow && hasAbove {
		if err := enc.EncodeBool(v < left, WeightTotal/2, WeightTotal); err != nil {
			return err
		}
	}

	for depth := 0; depth < c.MaxDepth && side.width() > 1; depth++ {
		nearHalf, farHalf := side.split()
		hit := nearHalf.contains(v)
		if err := enc.EncodeBool(hit, c.HalfSquareHit, WeightTotal); err != nil {
			return err
		}
		if hit {
			side = nearHalf
		} else {
			side = farHalf
		}
	}

	return enc.EncodeBits(side.offset(v), rawWidth(side.width()))
}

func (c Coder) readOutside(dec *arith.Decoder, left, right uint64) (uint64, error) {
	below, above, hasBelow, hasAbove := c.outside(left, right)

	side := above
	switch {
	case hasBelow && hasAbove:
		isBelow, err := dec.DecodeBool(WeightTotal/2, WeightTotal)
		if err != nil {
			return 0, err
		}
		if isBelow {
			side = below
		}
	case hasBelow:
		side = below
	case !hasAbove:
		return 0, fmt.Errorf("%w: out-of-range flag with full window", errs.ErrValueOutOfRange)
	}

	for depth := 0; depth < c.MaxDepth && side.width() > 1; depth++ {
		nearHalf, farHalf := side.split()
		hit, err := dec.DecodeBool(c.HalfSquareHit, WeightTotal)
		if err != nil {
			return 0, err
		}
		if hit {
			side = nearHalf
		} else {
			side = farHalf
		}
	}

	off, err := dec.DecodeBits(rawWidth(side.width()))
	if err != nil {
		return 0, err
	}
	if off >= side.width() && side.width() != 0 {
		return 0, fmt.Errorf("%w: raw offset %d beyond span of %d", errs.ErrValueOutOfRange, off, side.width())
	}

	return side.at(off), nil
}

// rawWidth returns the number of bits needed for offsets in [0,width).
// A zero width stands for a full 64-bit span.
func rawWidth(width uint64) int {
	if width == 0 {
		return 64
	}

	return bits.Len64(width - 1)
}
