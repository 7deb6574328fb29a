package errdist

import (
	"math/bits"
	"sort"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/stats"
)

const (
	// MaxTracked is the largest number of zigzag indices a histogram tracks
	// before its escape index.
	MaxTracked = 4096

	scaledTarget = 1 << 15
)

// Zigzag maps a signed error to a non-negative index: 0, -1, 1, -2, 2, ...
func Zigzag(e int64) uint64 {
	return uint64(e<<1) ^ uint64(e>>63) //nolint: gosec
}

// Unzigzag inverts Zigzag.
func Unzigzag(z uint64) int64 {
	return int64(z>>1) ^ -int64(z&1) //nolint: gosec
}

// Distribution is a histogram over zigzag-mapped errors whose last index is
// the escape for errors beyond the tracked range.
//
// The scaled coding table is cached and dropped on every count update.
type Distribution struct {
	counts []uint64
	table  *Table
}

// NewDistribution returns an empty histogram tracking tracked indices.
func NewDistribution(tracked int) *Distribution {
	tracked = min(max(tracked, 0), MaxTracked)

	return &Distribution{counts: make([]uint64, tracked+1)}
}

// FromCounts wraps a copy of counts, whose last entry is the escape.
func FromCounts(counts []uint64) *Distribution {
	if len(counts) == 0 {
		return NewDistribution(0)
	}
	if len(counts) > MaxTracked+1 {
		folded := append([]uint64(nil), counts[:MaxTracked+1]...)
		for _, c := range counts[MaxTracked+1:] {
			folded[MaxTracked] += c
		}

		return &Distribution{counts: folded}
	}

	return &Distribution{counts: append([]uint64(nil), counts...)}
}

// Counts returns a copy of the histogram including the escape.
func (d *Distribution) Counts() []uint64 {
	return append([]uint64(nil), d.counts...)
}

// Tracked returns the number of tracked indices; the escape index equals it.
func (d *Distribution) Tracked() int {
	return len(d.counts) - 1
}

// Total returns the number of observations.
func (d *Distribution) Total() uint64 {
	var sum uint64
	for _, c := range d.counts {
		sum += c
	}

	return sum
}

// CountError records one observation of e. The tracked range grows on demand
// up to MaxTracked; errors beyond it count toward the escape.
func (d *Distribution) CountError(e int64) {
	d.countIndex(Zigzag(e))
}

func (d *Distribution) countIndex(z uint64) {
	tracked := uint64(d.Tracked()) //nolint: gosec
	if z >= tracked && z < MaxTracked {
		escape := d.counts[tracked]
		d.counts[tracked] = 0
		d.counts = append(d.counts, make([]uint64, z+1-tracked)...)
		d.counts[len(d.counts)-1] = escape
		tracked = z + 1
	}
	if z < tracked {
		d.counts[z]++
	} else {
		d.counts[tracked]++
	}
	d.table = nil
}

// TrimToFirstZero folds everything after the first empty tracked index into
// that index, which becomes the new escape.
func (d *Distribution) TrimToFirstZero() {
	tracked := d.Tracked()
	for i, c := range d.counts[:tracked] {
		if c != 0 {
			continue
		}
		for _, rest := range d.counts[i+1:] {
			d.counts[i] += rest
		}
		d.counts = d.counts[:i+1]
		d.table = nil

		return
	}
}

// Accumulate adds other's counts into d, folding escapes the way
// stats.AccumulateHistogram does.
func (d *Distribution) Accumulate(other *Distribution) {
	d.counts = stats.AccumulateHistogram(d.counts, other.counts)
	d.table = nil
}

// Clone returns a deep copy of d.
func (d *Distribution) Clone() *Distribution {
	return &Distribution{counts: d.Counts()}
}

// Table returns the coding table for the current counts. The table is cached
// until the next count update and is immutable, so it may be shared between
// goroutines.
func (d *Distribution) Table() *Table {
	if d.table == nil {
		d.table = newTable(d.counts)
	}

	return d.table
}

// Scaled returns the coding weights, every entry at least 1, and their total,
// which never exceeds arith.MaxTotal.
func (d *Distribution) Scaled() ([]uint32, uint32) {
	t := d.Table()
	return t.weights, t.total
}

// Table is an immutable scaled coding table over a histogram's indices.
type Table struct {
	weights []uint32
	cum     []uint32
	total   uint32
}

func newTable(counts []uint64) *Table {
	var sum uint64
	for _, c := range counts {
		sum += c
	}

	t := &Table{
		weights: make([]uint32, len(counts)),
		cum:     make([]uint32, len(counts)),
	}
	for i, c := range counts {
		w := uint32(1)
		if sum > 0 {
			hi, lo := bits.Mul64(c, scaledTarget)
			q, _ := bits.Div64(hi, lo, sum)
			w = uint32(max(q, 1)) //nolint: gosec
		}
		t.weights[i] = w
		t.cum[i] = t.total
		t.total += w
	}

	return t
}

// Len returns the number of indices including the escape.
func (t *Table) Len() int {
	return len(t.weights)
}

// Escape returns the escape index.
func (t *Table) Escape() int {
	return len(t.weights) - 1
}

// Write codes idx.
func (t *Table) Write(enc *arith.Encoder, idx int) error {
	return enc.Encode(t.total, t.cum[idx], t.weights[idx])
}

// Read decodes an index.
func (t *Table) Read(dec *arith.Decoder) (int, error) {
	target, err := dec.Decode(t.total)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > target }) - 1
	if err := dec.Update(t.total, t.cum[idx], t.weights[idx]); err != nil {
		return 0, err
	}

	return idx, nil
}
