package pulse

import (
	"fmt"
	"math/bits"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

// Segment is a run of values [Lo,Hi] sharing the same probability height.
type Segment struct {
	Lo     uint64
	Hi     uint64
	Height uint32
}

// Width returns the number of values in the segment.
func (s Segment) Width() uint64 {
	return s.Hi - s.Lo + 1
}

// Pulse returns the piecewise-constant distribution over [left,right]: a
// center band around center at CenterHeight, a side band on each side at
// SideHeight, and tails of height 1. Empty segments are omitted.
func (c Coder) Pulse(center, left, right uint64) []Segment {
	return c.pulse(center, left, right, nil)
}

func (c Coder) pulse(center, left, right uint64, segs []Segment) []Segment {
	d := right - left
	halfCenter := d / 16
	side := max(d/8, 1)

	cLo := center - min(halfCenter, center-left)
	cHi := center + min(halfCenter, right-center)

	segs = segs[:0]
	if cLo > left {
		sLo := cLo - min(side, cLo-left)
		if sLo > left {
			segs = append(segs, Segment{Lo: left, Hi: sLo - 1, Height: 1})
		}
		segs = append(segs, Segment{Lo: sLo, Hi: cLo - 1, Height: c.SideHeight})
	}
	segs = append(segs, Segment{Lo: cLo, Hi: cHi, Height: c.CenterHeight})
	if cHi < right {
		sHi := cHi + min(side, right-cHi)
		segs = append(segs, Segment{Lo: cHi + 1, Hi: sHi, Height: c.SideHeight})
		if sHi < right {
			segs = append(segs, Segment{Lo: sHi + 1, Hi: right, Height: 1})
		}
	}

	return segs
}

// segmentWeights scales height*width of every segment onto a total of about
// segmentScale, keeping every weight at least 1.
func segmentWeights(segs []Segment, dst []uint32) (weights []uint32, total uint32) {
	var widest uint64
	for _, s := range segs {
		widest = max(widest, s.Width())
	}
	shift := max(bits.Len64(widest)-40, 0)

	var sum uint64
	var raw [5]uint64
	for i, s := range segs {
		raw[i] = uint64(s.Height) * max(s.Width()>>shift, 1)
		sum += raw[i]
	}

	dst = dst[:0]
	for _, r := range raw[:len(segs)] {
		w := uint32(max(r*segmentScale/sum, 1)) //nolint: gosec
		dst = append(dst, w)
		total += w
	}

	return dst, total
}

func writeSegments(enc *arith.Encoder, segs []Segment, v uint64) error {
	var buf [5]uint32
	weights, total := segmentWeights(segs, buf[:])

	var low uint32
	for i, s := range segs {
		if v >= s.Lo && v <= s.Hi {
			if err := enc.Encode(total, low, weights[i]); err != nil {
				return err
			}

			return enc.EncodeUniform(s.Width(), v-s.Lo)
		}
		low += weights[i]
	}

	return fmt.Errorf("%w: %d outside pulse segments", errs.ErrValueOutOfRange, v)
}

func readSegments(dec *arith.Decoder, segs []Segment) (uint64, error) {
	var buf [5]uint32
	weights, total := segmentWeights(segs, buf[:])

	target, err := dec.Decode(total)
	if err != nil {
		return 0, err
	}

	var low uint32
	for i, s := range segs {
		if target < low+weights[i] {
			if err := dec.Update(total, low, weights[i]); err != nil {
				return 0, err
			}
			off, err := dec.DecodeUniform(s.Width())
			if err != nil {
				return 0, err
			}

			return s.Lo + off, nil
		}
		low += weights[i]
	}

	return 0, fmt.Errorf("%w: pulse target %d beyond total %d", errs.ErrValueOutOfRange, target, total)
}
