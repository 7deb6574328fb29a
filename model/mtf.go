package model

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

// MoveToFrontModel codes values by their position in a recency list.
//
// A value seen recently is coded as its list position through an adaptive
// FlatModel, so the most recently used value quickly becomes the most
// probable. A value not in the list is coded as the escape position followed
// by its raw bits, and then enters the list at the front.
type MoveToFrontModel struct {
	recent    []uint64
	capacity  int
	width     int
	positions *FlatModel
}

// NewMoveToFrontModel creates a model remembering up to capacity values of
// the given raw bit width.
func NewMoveToFrontModel(capacity, width int) (*MoveToFrontModel, error) {
	if capacity < 1 || capacity >= MaxFlatSymbols {
		return nil, fmt.Errorf("%w: move-to-front capacity %d not in [1,%d)", errs.ErrSymbolOutOfRange, capacity, MaxFlatSymbols)
	}
	if width < 1 || width > 64 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidBitCount, width)
	}

	positions, err := NewFlatModel(capacity + 1)
	if err != nil {
		return nil, err
	}

	return &MoveToFrontModel{
		recent:    make([]uint64, 0, capacity),
		capacity:  capacity,
		width:     width,
		positions: positions,
	}, nil
}

// Len returns the number of values currently remembered.
func (m *MoveToFrontModel) Len() int {
	return len(m.recent)
}

// Recent returns the remembered values, most recent first.
func (m *MoveToFrontModel) Recent() []uint64 {
	return m.recent
}

// WriteValue codes v and moves it to the front of the recency list.
func (m *MoveToFrontModel) WriteValue(enc *arith.Encoder, v uint64) error {
	if m.width < 64 && v>>m.width != 0 {
		return fmt.Errorf("%w: %d wider than %d bits", errs.ErrValueOutOfRange, v, m.width)
	}

	pos := m.indexOf(v)
	if pos < 0 {
		if err := m.positions.WriteSymbol(enc, m.capacity); err != nil {
			return err
		}
		if err := enc.EncodeBits(v, m.width); err != nil {
			return err
		}
	} else if err := m.positions.WriteSymbol(enc, pos); err != nil {
		return err
	}
	m.touch(v, pos)

	return nil
}

// ReadValue decodes a value and moves it to the front of the recency list.
func (m *MoveToFrontModel) ReadValue(dec *arith.Decoder) (uint64, error) {
	pos, err := m.positions.ReadSymbol(dec)
	if err != nil {
		return 0, err
	}

	if pos == m.capacity {
		v, err := dec.DecodeBits(m.width)
		if err != nil {
			return 0, err
		}
		m.touch(v, m.indexOf(v))

		return v, nil
	}
	if pos >= len(m.recent) {
		return 0, fmt.Errorf("%w: recency position %d beyond %d entries", errs.ErrSymbolOutOfRange, pos, len(m.recent))
	}

	v := m.recent[pos]
	m.touch(v, pos)

	return v, nil
}

func (m *MoveToFrontModel) indexOf(v uint64) int {
	for i, r := range m.recent {
		if r == v {
			return i
		}
	}

	return -1
}

// touch moves v from pos (or from outside the list when pos < 0) to the front.
func (m *MoveToFrontModel) touch(v uint64, pos int) {
	if pos < 0 {
		if len(m.recent) < m.capacity {
			m.recent = append(m.recent, 0)
		}
		pos = len(m.recent) - 1
	}
	copy(m.recent[1:pos+1], m.recent[:pos])
	m.recent[0] = v
}

// Clone returns an independent copy of the model.
func (m *MoveToFrontModel) Clone() *MoveToFrontModel {
	recent := make([]uint64, len(m.recent), m.capacity)
	copy(recent, m.recent)

	return &MoveToFrontModel{
		recent:    recent,
		capacity:  m.capacity,
		width:     m.width,
		positions: m.positions.Clone(),
	}
}
