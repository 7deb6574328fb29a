package model

import (
	"github.com/arloliu/deltapack/arith"
)

const (
	bitIncrement = 2
	bitCountCap  = 1 << 12
)

// BitModel is an adaptive binary decision with two small counters.
//
// It is a value type so that it can be embedded in per-field state and
// round-tripped through a memento.
type BitModel struct {
	counts [2]uint16
}

// NewBitModel returns a neutral bit model (both outcomes equally likely).
func NewBitModel() BitModel {
	return BitModel{counts: [2]uint16{1, 1}}
}

// BitModelFromCounts restores a bit model from persisted counters. Zero
// counters are raised to 1.
func BitModelFromCounts(zero, one uint16) BitModel {
	return BitModel{counts: [2]uint16{max(zero, 1), max(one, 1)}}
}

// Counts returns the false and true counters.
func (b BitModel) Counts() (zero, one uint16) {
	return b.counts[0], b.counts[1]
}

// Probability returns the current probability of true.
func (b BitModel) Probability() float64 {
	c := b.normalized()
	return float64(c[1]) / float64(uint32(c[0])+uint32(c[1]))
}

// Write codes v and adapts the counters.
func (b *BitModel) Write(enc *arith.Encoder, v bool) error {
	c := b.normalized()
	total := uint32(c[0]) + uint32(c[1])

	var err error
	if v {
		err = enc.Encode(total, uint32(c[0]), uint32(c[1]))
	} else {
		err = enc.Encode(total, 0, uint32(c[0]))
	}
	if err != nil {
		return err
	}
	b.update(v)

	return nil
}

// Read decodes a decision and adapts the counters.
func (b *BitModel) Read(dec *arith.Decoder) (bool, error) {
	c := b.normalized()
	total := uint32(c[0]) + uint32(c[1])

	target, err := dec.Decode(total)
	if err != nil {
		return false, err
	}

	v := target >= uint32(c[0])
	if v {
		err = dec.Update(total, uint32(c[0]), uint32(c[1]))
	} else {
		err = dec.Update(total, 0, uint32(c[0]))
	}
	if err != nil {
		return false, err
	}
	b.update(v)

	return v, nil
}

func (b BitModel) normalized() [2]uint16 {
	return [2]uint16{max(b.counts[0], 1), max(b.counts[1], 1)}
}

func (b *BitModel) update(v bool) {
	b.counts = b.normalized()
	idx := 0
	if v {
		idx = 1
	}
	b.counts[idx] += bitIncrement
	if uint32(b.counts[0])+uint32(b.counts[1]) > bitCountCap {
		b.counts[0] = max(b.counts[0]>>1, 1)
		b.counts[1] = max(b.counts[1]>>1, 1)
	}
}
