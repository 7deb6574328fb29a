package model

import (
	"fmt"
	"sort"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

const (
	// MaxFlatSymbols is the largest alphabet a FlatModel accepts.
	MaxFlatSymbols = 260

	flatIncrement = 24
)

// FlatModel is an adaptive frequency table over a small alphabet.
type FlatModel struct {
	counts []uint32
	low    []uint32
	total  uint32
	dirty  bool
}

var _ Model = (*FlatModel)(nil)

// NewFlatModel creates a model over n symbols, each starting with count 1.
func NewFlatModel(n int) (*FlatModel, error) {
	if n < 1 || n > MaxFlatSymbols {
		return nil, fmt.Errorf("%w: flat model size %d not in [1,%d]", errs.ErrSymbolOutOfRange, n, MaxFlatSymbols)
	}

	m := &FlatModel{
		counts: make([]uint32, n),
		low:    make([]uint32, n),
	}
	for i := range m.counts {
		m.counts[i] = 1
	}
	m.RecalculateProbabilities()

	return m, nil
}

// NumSymbols returns the alphabet size.
func (m *FlatModel) NumSymbols() int {
	return len(m.counts)
}

// Count returns the current count of s.
func (m *FlatModel) Count(s int) uint32 {
	return m.counts[s]
}

// Low returns the cumulative count below s.
func (m *FlatModel) Low(s int) uint32 {
	if m.dirty {
		m.RecalculateProbabilities()
	}

	return m.low[s]
}

// Total returns the sum of all counts.
func (m *FlatModel) Total() uint32 {
	if m.dirty {
		m.RecalculateProbabilities()
	}

	return m.total
}

// RecalculateProbabilities rebuilds the cumulative lows and the total.
func (m *FlatModel) RecalculateProbabilities() {
	var sum uint32
	for i, c := range m.counts {
		m.low[i] = sum
		sum += c
	}
	m.total = sum
	m.dirty = false
}

// WriteSymbol codes s and increments its count.
func (m *FlatModel) WriteSymbol(enc *arith.Encoder, s int) error {
	if s < 0 || s >= len(m.counts) {
		return fmt.Errorf("%w: %d not in [0,%d)", errs.ErrSymbolOutOfRange, s, len(m.counts))
	}
	if m.dirty {
		m.RecalculateProbabilities()
	}
	if err := enc.Encode(m.total, m.low[s], m.counts[s]); err != nil {
		return err
	}
	m.increment(s)

	return nil
}

// ReadSymbol decodes a symbol and increments its count.
func (m *FlatModel) ReadSymbol(dec *arith.Decoder) (int, error) {
	if m.dirty {
		m.RecalculateProbabilities()
	}

	target, err := dec.Decode(m.total)
	if err != nil {
		return 0, err
	}
	s := m.symbolAt(target)
	if err := dec.Update(m.total, m.low[s], m.counts[s]); err != nil {
		return 0, err
	}
	m.increment(s)

	return s, nil
}

// symbolAt returns the symbol whose range contains target.
func (m *FlatModel) symbolAt(target uint32) int {
	return sort.Search(len(m.low), func(i int) bool { return m.low[i] > target }) - 1
}

func (m *FlatModel) increment(s int) {
	if m.total+flatIncrement > arith.MaxTotal {
		halveCounts(m.counts)
	}
	m.counts[s] += flatIncrement
	m.dirty = true
}

// halveCounts halves every count, keeping each at least 1.
func halveCounts(counts []uint32) {
	for i, c := range counts {
		c >>= 1
		if c == 0 {
			c = 1
		}
		counts[i] = c
	}
}

// Clone returns an independent copy of the model.
func (m *FlatModel) Clone() *FlatModel {
	return &FlatModel{
		counts: append([]uint32(nil), m.counts...),
		low:    append([]uint32(nil), m.low...),
		total:  m.total,
		dirty:  m.dirty,
	}
}
