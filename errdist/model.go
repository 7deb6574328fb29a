// Package errdist codes prediction errors with a learned histogram.
//
// A Model holds three distributions per field policy: the write
// distribution used for this process's updates, the read distribution
// mirroring the remote peer's write distribution, and a count distribution
// that gathers live observations for the background statistics task. The
// write and read sides are seeded independently from read-only statistics
// and fixed afterwards, so a stream decodes as long as the reader's read side
// was seeded from the same statistics as the writer's write side.
//
// An error is coded as:
//
//  1. A same-as-last flag, through an adaptive bit carried in the field's
//     memento, saying the field kept its previous value.
//  2. Its zigzag index through the histogram, or the histogram's escape.
//  3. For escaped errors, or when no histogram is loaded, its bit length
//     bucket through learned bucket weights followed by the remaining bits.
//  4. With no statistics at all, raw zigzag bits of the configured width.
package errdist

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/model"
	"github.com/arloliu/deltapack/stats"
)

// NumBuckets is the number of bit-length buckets: lengths 0 through 64.
const NumBuckets = 65

// State is the per-field adaptive state of an error model.
type State struct {
	Same     model.BitModel
	LastZero bool
}

// NewState returns the neutral state.
func NewState() State {
	return State{Same: model.NewBitModel()}
}

// Marshal appends s to a memento.
func (s *State) Marshal(w *memento.Writer) {
	zero, one := s.Same.Counts()
	w.Uint16(zero)
	w.Uint16(one)
	w.Bool(s.LastZero)
}

// Unmarshal reads s from a memento.
func (s *State) Unmarshal(r *memento.Reader) error {
	zero := r.Uint16()
	one := r.Uint16()
	s.Same = model.BitModelFromCounts(zero, one)
	s.LastZero = r.Bool()

	return r.Err()
}

// coding is the immutable coding surface of one side, swapped in by a seed.
// hist is nil when only bucket weights were learned.
type coding struct {
	hist    *Table
	buckets *Table
}

func newCoding(snap *stats.Snapshot) *coding {
	if snap == nil || snap.Empty() {
		return nil
	}

	c := &coding{}
	if snap.Total() > 0 {
		dist := FromCounts(snap.Counts)
		dist.TrimToFirstZero()
		c.hist = dist.Table()
	}

	var sum uint64
	for _, n := range snap.Buckets {
		sum += n
	}
	buckets := make([]uint64, NumBuckets)
	copy(buckets, snap.Buckets)
	if sum == 0 {
		// Favor short lengths when nothing was learned.
		for i := range buckets {
			buckets[i] = uint64(NumBuckets - i)
		}
	}
	c.buckets = newTable(buckets)

	return c
}

// Model is the error coder of one policy instance, shared by all fields and
// connections using it.
type Model struct {
	width int
	write atomic.Pointer[coding]
	read  atomic.Pointer[coding]

	mu            sync.Mutex
	count         *Distribution
	buckets       [NumBuckets]uint64
	zeroAfterZero [2][2]uint64
}

// NewModel creates a model whose raw fallback writes width bits.
func NewModel(width int) (*Model, error) {
	if width < 1 || width > 64 {
		return nil, fmt.Errorf("%w: error width %d", errs.ErrInvalidBitCount, width)
	}

	return &Model{width: width, count: NewDistribution(0)}, nil
}

// Width returns the raw fallback width.
func (m *Model) Width() int {
	return m.width
}

// Loaded reports which sides hold seeded statistics.
func (m *Model) Loaded() (write, read bool) {
	return m.write.Load() != nil, m.read.Load() != nil
}

// SeedWrite installs the write side from snap. The histogram is trimmed to
// its first empty index. A nil or empty snapshot clears the side, which then
// codes raw bits.
func (m *Model) SeedWrite(snap *stats.Snapshot) {
	m.write.Store(newCoding(snap))
}

// SeedRead installs the read side from statistics of the remote peer's
// write side, with the same rules as SeedWrite.
func (m *Model) SeedRead(snap *stats.Snapshot) {
	m.read.Store(newCoding(snap))
}

// Seed installs both sides from one snapshot, for peers sharing statistics.
func (m *Model) Seed(snap *stats.Snapshot) {
	c := newCoding(snap)
	m.write.Store(c)
	m.read.Store(c)
}

// WriteValue codes e. unchanged is the error that would leave the field at
// its previous value.
func (m *Model) WriteValue(enc *arith.Encoder, e, unchanged int64, st *State) error {
	same := e == unchanged
	if err := st.Same.Write(enc, same); err != nil {
		return err
	}
	m.observe(e, st)
	if same {
		return nil
	}

	z := Zigzag(e)
	c := m.write.Load()
	if c == nil {
		if m.width < 64 && z>>m.width != 0 {
			return fmt.Errorf("%w: error %d exceeds %d raw bits", errs.ErrValueOutOfRange, e, m.width)
		}

		return enc.EncodeBits(z, m.width)
	}

	if c.hist != nil {
		idx := c.hist.Escape()
		if z < uint64(idx) { //nolint: gosec
			idx = int(z) //nolint: gosec
		}
		if err := c.hist.Write(enc, idx); err != nil {
			return err
		}
		if idx != c.hist.Escape() {
			return nil
		}
	}

	return writeBucketed(enc, c.buckets, z)
}

// ReadValue decodes an error written by WriteValue.
func (m *Model) ReadValue(dec *arith.Decoder, unchanged int64, st *State) (int64, error) {
	same, err := st.Same.Read(dec)
	if err != nil {
		return 0, err
	}
	if same {
		m.observe(unchanged, st)
		return unchanged, nil
	}

	var z uint64
	c := m.read.Load()
	switch {
	case c == nil:
		if z, err = dec.DecodeBits(m.width); err != nil {
			return 0, err
		}
	case c.hist != nil:
		idx, err := c.hist.Read(dec)
		if err != nil {
			return 0, err
		}
		if idx != c.hist.Escape() {
			z = uint64(idx) //nolint: gosec
			break
		}

		fallthrough
	default:
		if z, err = readBucketed(dec, c.buckets); err != nil {
			return 0, err
		}
	}

	e := Unzigzag(z)
	if e == unchanged {
		return 0, fmt.Errorf("%w: unchanged error coded without same flag", errs.ErrValueOutOfRange)
	}
	m.observe(e, st)

	return e, nil
}

// writeBucketed codes the bit length of z then its bits below the leading one.
func writeBucketed(enc *arith.Encoder, buckets *Table, z uint64) error {
	n := bits.Len64(z)
	if err := buckets.Write(enc, n); err != nil {
		return err
	}
	if n <= 1 {
		return nil
	}

	return enc.EncodeBits(z&(uint64(1)<<(n-1)-1), n-1)
}

func readBucketed(dec *arith.Decoder, buckets *Table) (uint64, error) {
	n, err := buckets.Read(dec)
	if err != nil {
		return 0, err
	}
	if n <= 1 {
		return uint64(n), nil //nolint: gosec
	}

	rest, err := dec.DecodeBits(n - 1)
	if err != nil {
		return 0, err
	}

	return uint64(1)<<(n-1) | rest, nil
}

func (m *Model) observe(e int64, st *State) {
	zero := e == 0
	m.mu.Lock()
	m.count.CountError(e)
	m.buckets[bits.Len64(Zigzag(e))]++
	m.zeroAfterZero[b2i(st.LastZero)][b2i(zero)]++
	m.mu.Unlock()
	st.LastZero = zero
}

// DrainCounts hands the gathered observations to the caller as a snapshot
// and starts a fresh count distribution. ok is false when nothing was
// observed since the last drain.
func (m *Model) DrainCounts(key, channel string) (snap *stats.Snapshot, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count.Total() == 0 {
		return nil, false
	}

	snap = &stats.Snapshot{
		Key:           key,
		Channel:       channel,
		Counts:        m.count.Counts(),
		ZeroAfterZero: m.zeroAfterZero,
		Buckets:       append([]uint64(nil), m.buckets[:]...),
	}
	m.count = NewDistribution(0)
	m.buckets = [NumBuckets]uint64{}
	m.zeroAfterZero = [2][2]uint64{}

	return snap, true
}

func b2i(b bool) int {
	if b {
		return 1
	}

	return 0
}
