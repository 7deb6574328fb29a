package model

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

const (
	// SegmentSize is the fan-out of the leaf and middle levels.
	SegmentSize = 32

	// MaxHierarchicalSymbols is the largest alphabet a HierarchicalModel accepts.
	MaxHierarchicalSymbols = 1 << 20

	hierIncrement = 16
	// hierCountCap keeps a full leaf segment's total within arith.MaxTotal.
	hierCountCap = arith.MaxTotal/SegmentSize - 1
)

// HierarchicalModel is an adaptive frequency table for large alphabets.
//
// Symbols are grouped into leaf segments of SegmentSize counts, leaf segments
// into middle segments of SegmentSize leaves, and middle segments into the
// outer level. A symbol is coded in three stages (middle segment, leaf within
// middle, symbol within leaf); each stage's weights are scaled down on the fly
// whenever their sum would exceed arith.MaxTotal.
type HierarchicalModel struct {
	n         int
	counts    []uint32
	leafTotal []uint32 // per leaf segment
	midTotal  []uint32 // per middle segment
	total     uint32
	weights   [SegmentSize]uint32
	outerBuf  []uint32
}

var _ Model = (*HierarchicalModel)(nil)

// NewHierarchicalModel creates a model over n symbols, each starting with count 1.
func NewHierarchicalModel(n int) (*HierarchicalModel, error) {
	if n < 1 || n > MaxHierarchicalSymbols {
		return nil, fmt.Errorf("%w: hierarchical model size %d not in [1,%d]", errs.ErrSymbolOutOfRange, n, MaxHierarchicalSymbols)
	}

	leaves := (n + SegmentSize - 1) / SegmentSize
	mids := (leaves + SegmentSize - 1) / SegmentSize
	m := &HierarchicalModel{
		n:         n,
		counts:    make([]uint32, leaves*SegmentSize),
		leafTotal: make([]uint32, leaves),
		midTotal:  make([]uint32, mids),
		outerBuf:  make([]uint32, mids),
	}
	for i := range n {
		m.counts[i] = 1
	}
	m.RecalculateProbabilities()

	return m, nil
}

// NumSymbols returns the alphabet size.
func (m *HierarchicalModel) NumSymbols() int {
	return m.n
}

// Count returns the current count of s.
func (m *HierarchicalModel) Count(s int) uint32 {
	return m.counts[s]
}

// Low returns the cumulative count below s, summed segment by segment.
func (m *HierarchicalModel) Low(s int) uint32 {
	leaf := s / SegmentSize
	mid := leaf / SegmentSize

	var low uint32
	for i := range mid {
		low += m.midTotal[i]
	}
	for i := mid * SegmentSize; i < leaf; i++ {
		low += m.leafTotal[i]
	}
	for i := leaf * SegmentSize; i < s; i++ {
		low += m.counts[i]
	}

	return low
}

// Total returns the sum of all counts.
func (m *HierarchicalModel) Total() uint32 {
	return m.total
}

// RecalculateProbabilities rebuilds leaf, middle and outer totals bottom-up.
func (m *HierarchicalModel) RecalculateProbabilities() {
	m.total = 0
	for i := range m.midTotal {
		m.midTotal[i] = 0
	}
	for leaf := range m.leafTotal {
		var sum uint32
		for _, c := range m.counts[leaf*SegmentSize : (leaf+1)*SegmentSize] {
			sum += c
		}
		m.leafTotal[leaf] = sum
		m.midTotal[leaf/SegmentSize] += sum
		m.total += sum
	}
}

// WriteSymbol codes s in three stages and increments its count.
func (m *HierarchicalModel) WriteSymbol(enc *arith.Encoder, s int) error {
	if s < 0 || s >= m.n {
		return fmt.Errorf("%w: %d not in [0,%d)", errs.ErrSymbolOutOfRange, s, m.n)
	}

	leaf := s / SegmentSize
	mid := leaf / SegmentSize

	if err := encodeStage(enc, m.midTotal, m.outerBuf, mid); err != nil {
		return err
	}
	if err := encodeStage(enc, m.leafSlice(mid), m.weights[:], leaf-mid*SegmentSize); err != nil {
		return err
	}
	if err := encodeStage(enc, m.counts[leaf*SegmentSize:(leaf+1)*SegmentSize], m.weights[:], s-leaf*SegmentSize); err != nil {
		return err
	}
	m.increment(s)

	return nil
}

// ReadSymbol decodes a symbol in three stages and increments its count.
func (m *HierarchicalModel) ReadSymbol(dec *arith.Decoder) (int, error) {
	mid, err := decodeStage(dec, m.midTotal, m.outerBuf)
	if err != nil {
		return 0, err
	}
	leafOff, err := decodeStage(dec, m.leafSlice(mid), m.weights[:])
	if err != nil {
		return 0, err
	}
	leaf := mid*SegmentSize + leafOff
	symOff, err := decodeStage(dec, m.counts[leaf*SegmentSize:(leaf+1)*SegmentSize], m.weights[:])
	if err != nil {
		return 0, err
	}
	s := leaf*SegmentSize + symOff
	if s >= m.n {
		return 0, fmt.Errorf("%w: decoded %d not in [0,%d)", errs.ErrSymbolOutOfRange, s, m.n)
	}
	m.increment(s)

	return s, nil
}

func (m *HierarchicalModel) leafSlice(mid int) []uint32 {
	end := min((mid+1)*SegmentSize, len(m.leafTotal))
	return m.leafTotal[mid*SegmentSize : end]
}

func (m *HierarchicalModel) increment(s int) {
	if m.counts[s]+hierIncrement > hierCountCap {
		halveCounts(m.counts[:m.n])
		m.RecalculateProbabilities()
	}

	m.counts[s] += hierIncrement
	leaf := s / SegmentSize
	m.leafTotal[leaf] += hierIncrement
	m.midTotal[leaf/SegmentSize] += hierIncrement
	m.total += hierIncrement
}

// stageWeights copies src into dst, scaled by the smallest power of two that
// keeps the sum within arith.MaxTotal. Non-zero entries stay non-zero.
func stageWeights(src, dst []uint32) (weights []uint32, total uint32) {
	dst = dst[:len(src)]
	for shift := uint(0); ; shift++ {
		var sum uint64
		for i, v := range src {
			w := v >> shift
			if w == 0 && v != 0 {
				w = 1
			}
			dst[i] = w
			sum += uint64(w)
		}
		if sum <= arith.MaxTotal {
			return dst, uint32(sum) //nolint: gosec
		}
	}
}

func encodeStage(enc *arith.Encoder, src, buf []uint32, idx int) error {
	weights, total := stageWeights(src, buf)

	var low uint32
	for _, w := range weights[:idx] {
		low += w
	}

	return enc.Encode(total, low, weights[idx])
}

func decodeStage(dec *arith.Decoder, src, buf []uint32) (int, error) {
	weights, total := stageWeights(src, buf)

	target, err := dec.Decode(total)
	if err != nil {
		return 0, err
	}

	var low uint32
	for i, w := range weights {
		if target < low+w {
			return i, dec.Update(total, low, w)
		}
		low += w
	}

	return 0, fmt.Errorf("%w: stage target %d beyond total %d", errs.ErrSymbolOutOfRange, target, total)
}

// Clone returns an independent copy of the model.
func (m *HierarchicalModel) Clone() *HierarchicalModel {
	return &HierarchicalModel{
		n:         m.n,
		counts:    append([]uint32(nil), m.counts...),
		leafTotal: append([]uint32(nil), m.leafTotal...),
		midTotal:  append([]uint32(nil), m.midTotal...),
		total:     m.total,
		outerBuf:  make([]uint32, len(m.outerBuf)),
	}
}
