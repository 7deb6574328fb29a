package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

// RangedInt codes integers known to lie in [Min,Max] uniformly over that
// range.
type RangedInt struct {
	key      string
	min, max int64
}

var _ Policy = (*RangedInt)(nil)

// NewRangedInt returns a policy for integers in [lo,hi].
func NewRangedInt(key string, lo, hi int64) (*RangedInt, error) {
	if lo > hi {
		return nil, fmt.Errorf("%w: ranged int %q: min %d above max %d", errs.ErrInvalidPolicyConfig, key, lo, hi)
	}

	return &RangedInt{key: key, min: lo, max: hi}, nil
}

// Key returns the configured policy name.
func (p *RangedInt) Key() string { return p.key }

// Supports accepts integer types, including Bool and ID.
func (p *RangedInt) Supports(t format.WireType) bool { return t.IsInteger() }

// NewState returns nil; RangedInt keeps no per-field state.
func (p *RangedInt) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *RangedInt) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *RangedInt) WriteMemento(*memento.Writer, State) {}

// span returns the number of values in range; 0 stands for 2^64.
func (p *RangedInt) span() uint64 {
	return uint64(p.max-p.min) + 1 //nolint: gosec
}

// WriteValue codes the offset of v from the range minimum uniformly over the
// range.
//
// Returns errs.ErrValueOutOfRange when v lies outside [min, max].
func (p *RangedInt) WriteValue(enc *arith.Encoder, v Value, _ State, _ Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}

	i := v.Int
	if v.Type == format.TypeUint64 && i < 0 {
		return fmt.Errorf("%w: %d not in [%d,%d]", errs.ErrValueOutOfRange, v.Uint(), p.min, p.max)
	}
	if i < p.min || i > p.max {
		return fmt.Errorf("%w: %d not in [%d,%d]", errs.ErrValueOutOfRange, i, p.min, p.max)
	}

	off := uint64(i - p.min) //nolint: gosec
	if span := p.span(); span != 0 {
		return enc.EncodeUniform(span, off)
	}

	return enc.EncodeBits(off, 64)
}

// ReadValue decodes an offset written by WriteValue.
func (p *RangedInt) ReadValue(dec *arith.Decoder, t format.WireType, _ State, _ Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}

	var off uint64
	var err error
	if span := p.span(); span != 0 {
		off, err = dec.DecodeUniform(span)
	} else {
		off, err = dec.DecodeBits(64)
	}
	if err != nil {
		return Value{}, err
	}

	return IntValue(t, p.min+int64(off)), nil //nolint: gosec
}
