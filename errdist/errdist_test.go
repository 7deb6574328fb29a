package errdist

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/stats"
)

func TestZigzag(t *testing.T) {
	tests := []struct {
		e int64
		z uint64
	}{
		{0, 0}, {-1, 1}, {1, 2}, {-2, 3}, {2, 4},
		{math.MaxInt64, math.MaxUint64 - 1},
		{math.MinInt64, math.MaxUint64},
	}

	for _, tt := range tests {
		require.Equal(t, tt.z, Zigzag(tt.e), "zigzag(%d)", tt.e)
		require.Equal(t, tt.e, Unzigzag(tt.z), "unzigzag(%d)", tt.z)
	}
}

func TestDistribution_CountErrorGrows(t *testing.T) {
	d := NewDistribution(2)
	require.Equal(t, 2, d.Tracked())

	d.CountError(0)
	d.CountError(-1)
	d.CountError(3) // zigzag 6
	require.Equal(t, []uint64{1, 1, 0, 0, 0, 0, 1, 0}, d.Counts())

	d.CountError(MaxTracked) // beyond the tracked ceiling
	counts := d.Counts()
	require.Equal(t, uint64(1), counts[len(counts)-1])
	require.Equal(t, uint64(4), d.Total())
}

func TestDistribution_CountErrorKeepsEscape(t *testing.T) {
	d := FromCounts([]uint64{5, 4, 9})
	d.CountError(2) // zigzag 4
	require.Equal(t, []uint64{5, 4, 0, 0, 1, 9}, d.Counts())
}

func TestDistribution_TrimToFirstZero(t *testing.T) {
	tests := []struct {
		name   string
		counts []uint64
		want   []uint64
	}{
		{"no zero", []uint64{3, 2, 1, 0}, []uint64{3, 2, 1, 0}},
		{"interior zero", []uint64{5, 3, 0, 2, 1, 4}, []uint64{5, 3, 7}},
		{"leading zero", []uint64{0, 3, 1}, []uint64{4}},
		{"zero before escape", []uint64{2, 0, 6}, []uint64{2, 6}},
		{"escape only", []uint64{9}, []uint64{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromCounts(tt.counts)
			total := d.Total()

			d.TrimToFirstZero()
			require.Equal(t, tt.want, d.Counts())
			require.Equal(t, total, d.Total())

			d.TrimToFirstZero()
			require.Equal(t, tt.want, d.Counts(), "trim must be idempotent")
		})
	}
}

func TestDistribution_TrimIdempotentRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for range 200 {
		counts := make([]uint64, rng.Intn(40)+1)
		for i := range counts {
			if rng.Intn(4) != 0 {
				counts[i] = uint64(rng.Intn(100))
			}
		}

		once := FromCounts(counts)
		once.TrimToFirstZero()
		twice := once.Clone()
		twice.TrimToFirstZero()
		require.Equal(t, once.Counts(), twice.Counts())
	}
}

func TestDistribution_Accumulate(t *testing.T) {
	a := FromCounts([]uint64{1, 2, 3})
	b := FromCounts([]uint64{10, 20, 30, 40, 50})

	a.Accumulate(b)
	require.Equal(t, []uint64{11, 22, 30, 40, 53}, a.Counts())

	b.Accumulate(FromCounts([]uint64{1, 1}))
	require.Equal(t, []uint64{11, 20, 30, 40, 51}, b.Counts())
}

func TestDistribution_AccumulateMatchesSnapshot(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for range 50 {
		x := make([]uint64, 1+rng.Intn(8))
		y := make([]uint64, 1+rng.Intn(8))
		for i := range x {
			x[i] = uint64(rng.Intn(100))
		}
		for i := range y {
			y[i] = uint64(rng.Intn(100))
		}

		d := FromCounts(x)
		before := d.Table()
		d.Accumulate(FromCounts(y))

		snap := &stats.Snapshot{Key: "k", Counts: append([]uint64(nil), x...)}
		snap.Accumulate(&stats.Snapshot{Key: "k", Counts: y})

		require.Equal(t, snap.Counts, d.Counts())
		require.Equal(t, sum(x)+sum(y), sum(d.Counts()), "the escape fold keeps every observation")
		require.Len(t, d.Counts(), max(len(x), len(y)))
		require.NotSame(t, before, d.Table())
	}
}

func sum(counts []uint64) uint64 {
	var total uint64
	for _, c := range counts {
		total += c
	}

	return total
}

func TestDistribution_Scaled(t *testing.T) {
	counts := make([]uint64, MaxTracked+1)
	counts[0] = math.MaxUint64 / 4
	counts[1] = 1
	d := FromCounts(counts)

	weights, total := d.Scaled()
	require.Len(t, weights, MaxTracked+1)
	require.LessOrEqual(t, total, uint32(arith.MaxTotal))

	var sum uint32
	for _, w := range weights {
		require.GreaterOrEqual(t, w, uint32(1))
		sum += w
	}
	require.Equal(t, total, sum)

	// The cached table is dropped on update.
	first := d.Table()
	require.Same(t, first, d.Table())
	d.CountError(0)
	require.NotSame(t, first, d.Table())
}

func seededModel(t *testing.T, counts []uint64) (write, read *Model) {
	t.Helper()

	snap := &stats.Snapshot{Key: "k", Counts: counts}
	write, err := NewModel(17)
	require.NoError(t, err)
	read, err = NewModel(17)
	require.NoError(t, err)
	write.Seed(snap)
	read.Seed(snap)

	return write, read
}

type valueCase struct {
	e, unchanged int64
}

func roundTripValues(t *testing.T, w, r *Model, cases []valueCase) int {
	t.Helper()

	enc := arith.NewEncoder()
	defer enc.Release()
	ws := NewState()
	for i, c := range cases {
		require.NoError(t, w.WriteValue(enc, c.e, c.unchanged, &ws), "case %d", i)
	}
	used := enc.BitCount()
	data := append([]byte(nil), enc.Finish()...)

	dec := arith.NewDecoder(data)
	rs := NewState()
	for i, c := range cases {
		got, err := r.ReadValue(dec, c.unchanged, &rs)
		require.NoError(t, err, "case %d", i)
		require.Equal(t, c.e, got, "case %d", i)
	}
	require.Equal(t, ws, rs)

	return used
}

func TestModel_HistogramRoundTrip(t *testing.T) {
	w, r := seededModel(t, []uint64{100, 50, 50, 20, 20, 5, 5, 1})
	loaded, _ := w.Loaded()
	require.True(t, loaded)

	rng := rand.New(rand.NewSource(9))
	cases := make([]valueCase, 1000)
	for i := range cases {
		cases[i] = valueCase{e: int64(rng.Intn(9) - 4), unchanged: int64(rng.Intn(3) - 1)}
	}
	roundTripValues(t, w, r, cases)
}

func TestModel_BitBucketEscape(t *testing.T) {
	w, r := seededModel(t, []uint64{100, 50, 50, 20, 2})

	cases := []valueCase{
		{e: 1, unchanged: 0},
		{e: 70000, unchanged: 0},
		{e: -123456789, unchanged: 0},
		{e: math.MaxInt32, unchanged: 5},
		{e: math.MinInt64, unchanged: 0},
		{e: math.MaxInt64, unchanged: 0},
		{e: -2, unchanged: 0},
	}
	roundTripValues(t, w, r, cases)
}

func TestModel_RawFallback(t *testing.T) {
	w, err := NewModel(10)
	require.NoError(t, err)
	r, err := NewModel(10)
	require.NoError(t, err)
	loaded, _ := w.Loaded()
	require.False(t, loaded)

	roundTripValues(t, w, r, []valueCase{{e: 3}, {e: -511}, {e: 511}, {e: 0, unchanged: 4}})

	enc := arith.NewEncoder()
	defer enc.Release()
	st := NewState()
	require.ErrorIs(t, w.WriteValue(enc, 512, 0, &st), errs.ErrValueOutOfRange)
}

func TestModel_BucketsOnlySnapshot(t *testing.T) {
	snap := &stats.Snapshot{Key: "k", Buckets: []uint64{10, 5, 80, 3}}
	w, err := NewModel(8)
	require.NoError(t, err)
	r, err := NewModel(8)
	require.NoError(t, err)
	w.Seed(snap)
	r.Seed(snap)
	loaded, _ := w.Loaded()
	require.True(t, loaded)

	roundTripValues(t, w, r, []valueCase{{e: 2}, {e: -2}, {e: 1 << 40}, {e: 0, unchanged: 1}})
}

func TestModel_SameAsLastDominates(t *testing.T) {
	w, r := seededModel(t, nil)

	cases := make([]valueCase, 200)
	for i := range cases {
		cases[i] = valueCase{e: 7, unchanged: 7}
	}
	used := roundTripValues(t, w, r, cases)

	// The raw width is 17 bits; a steady field costs a small fraction of a bit.
	assert.Less(t, used, len(cases)*2)
}

func TestModel_DrainCounts(t *testing.T) {
	m, err := NewModel(16)
	require.NoError(t, err)

	_, ok := m.DrainCounts("k", "own")
	require.False(t, ok)

	enc := arith.NewEncoder()
	defer enc.Release()
	st := NewState()
	for _, e := range []int64{0, 0, 3, 0, -1} {
		require.NoError(t, m.WriteValue(enc, e, 99, &st))
	}

	snap, ok := m.DrainCounts("k", "own")
	require.True(t, ok)
	require.Equal(t, "k", snap.Key)
	require.Equal(t, "own", snap.Channel)
	require.Equal(t, uint64(5), snap.Total())
	require.Equal(t, uint64(3), snap.Counts[0])
	require.Equal(t, uint64(1), snap.Counts[Zigzag(3)])
	// Indexed [previous was zero][current is zero]; the first error follows nonzero.
	require.Equal(t, [2][2]uint64{{0, 2}, {2, 1}}, snap.ZeroAfterZero)
	require.Equal(t, uint64(3), snap.Buckets[0])
	require.Len(t, snap.Buckets, NumBuckets)

	_, ok = m.DrainCounts("k", "own")
	require.False(t, ok)
}

func TestModel_SeedTrimsAndClears(t *testing.T) {
	m, err := NewModel(16)
	require.NoError(t, err)

	m.Seed(&stats.Snapshot{Key: "k", Counts: []uint64{4, 0, 9, 9}})
	write, read := m.Loaded()
	require.True(t, write)
	require.True(t, read)
	require.Equal(t, 2, m.write.Load().hist.Len())
	require.Same(t, m.write.Load(), m.read.Load())

	m.SeedRead(&stats.Snapshot{Key: "k"})
	write, read = m.Loaded()
	require.True(t, write)
	require.False(t, read)

	m.Seed(nil)
	write, read = m.Loaded()
	require.False(t, write)
	require.False(t, read)
}

// Two peers learned different statistics; each reads with the other's
// write statistics.
func TestModel_IndependentSides(t *testing.T) {
	serverStats := &stats.Snapshot{Key: "k", Counts: []uint64{200, 80, 80, 10, 10, 2}}
	clientStats := &stats.Snapshot{Key: "k", Counts: []uint64{5, 40, 40, 60, 60, 30, 30, 8, 8}}

	server, err := NewModel(17)
	require.NoError(t, err)
	client, err := NewModel(17)
	require.NoError(t, err)
	server.SeedWrite(serverStats)
	server.SeedRead(clientStats)
	client.SeedWrite(clientStats)
	client.SeedRead(serverStats)

	rng := rand.New(rand.NewSource(3))
	cases := make([]valueCase, 500)
	for i := range cases {
		cases[i] = valueCase{e: int64(rng.Intn(21) - 10), unchanged: 99}
	}
	cases = append(cases, valueCase{e: 98301, unchanged: 0}, valueCase{e: -4, unchanged: 0})

	roundTripValues(t, server, client, cases)
	roundTripValues(t, client, server, cases)
}

func TestModel_ReadSideUnseeded(t *testing.T) {
	w, err := NewModel(12)
	require.NoError(t, err)
	r, err := NewModel(12)
	require.NoError(t, err)

	// A writer with only a read side still codes raw bits, matching a fresh reader.
	w.SeedRead(&stats.Snapshot{Key: "k", Counts: []uint64{9, 9, 9}})
	roundTripValues(t, w, r, []valueCase{{e: 5}, {e: -2000}, {e: 0, unchanged: 1}})
}

func TestState_MementoRoundTrip(t *testing.T) {
	w, _ := seededModel(t, []uint64{10, 10, 10, 1})

	enc := arith.NewEncoder()
	defer enc.Release()
	st := NewState()
	for _, e := range []int64{0, 0, 1, 1, 1, 0} {
		require.NoError(t, w.WriteValue(enc, e, 1, &st))
	}

	mw := memento.NewWriter(nil)
	st.Marshal(mw)

	restored := NewState()
	r := memento.NewReader(mw.Bytes())
	require.NoError(t, restored.Unmarshal(r))
	require.NoError(t, r.Done())
	require.Equal(t, st, restored)
}

func TestNewModel_InvalidWidth(t *testing.T) {
	_, err := NewModel(0)
	require.ErrorIs(t, err, errs.ErrInvalidBitCount)
	_, err = NewModel(65)
	require.ErrorIs(t, err, errs.ErrInvalidBitCount)
}
