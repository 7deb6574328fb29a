package pulse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
)

type pulseCase struct {
	v, center, left, right uint64
}

func roundTrip(t *testing.T, c Coder, cases []pulseCase) int {
	t.Helper()

	enc := arith.NewEncoder()
	defer enc.Release()
	for i, pc := range cases {
		require.NoError(t, c.Write(enc, pc.v, pc.center, pc.left, pc.right), "case %d", i)
	}
	bitsUsed := enc.BitCount()
	data := append([]byte(nil), enc.Finish()...)

	dec := arith.NewDecoder(data)
	for i, pc := range cases {
		got, err := c.Read(dec, pc.center, pc.left, pc.right)
		require.NoError(t, err, "case %d", i)
		require.Equal(t, pc.v, got, "case %d %+v", i, pc)
	}

	return bitsUsed
}

func TestCoder_Validate(t *testing.T) {
	require.NoError(t, New(16).Validate())

	tests := []struct {
		name   string
		mutate func(*Coder)
	}{
		{"zero bits", func(c *Coder) { c.Bits = 0 }},
		{"wide bits", func(c *Coder) { c.Bits = 65 }},
		{"in-range weight", func(c *Coder) { c.InRangeWeight = WeightTotal }},
		{"half-square weight", func(c *Coder) { c.HalfSquareHit = 0 }},
		{"zero height", func(c *Coder) { c.SideHeight = 0 }},
		{"deep search", func(c *Coder) { c.MaxDepth = MaxSearchDepth + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(16)
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestCoder_RoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, bits := range []int{1, 2, 8, 16, 32, 64} {
		c := New(bits)
		maxV := c.MaxValue()

		cases := make([]pulseCase, 3000)
		for i := range cases {
			a, b := rng.Uint64()&maxV, rng.Uint64()&maxV
			if a > b {
				a, b = b, a
			}
			// Mix narrow windows and wide windows.
			if i%3 == 0 && maxV > 4 {
				b = min(a+uint64(rng.Intn(3)), maxV)
			}
			center := a + (b-a)/2
			var v uint64
			switch i % 4 {
			case 0:
				v = a + (b-a)/3
			case 1:
				v = rng.Uint64() & maxV
			case 2:
				v = min(b+1, maxV)
			default:
				v = center
			}
			cases[i] = pulseCase{v: v, center: center, left: a, right: b}
		}
		roundTrip(t, c, cases)
	}
}

func TestCoder_Edges(t *testing.T) {
	c := New(8)
	cases := []pulseCase{
		{v: 0, center: 0, left: 0, right: 255},
		{v: 255, center: 0, left: 0, right: 255},
		{v: 0, center: 255, left: 250, right: 255},
		{v: 249, center: 255, left: 250, right: 255},
		{v: 255, center: 0, left: 0, right: 5},
		{v: 6, center: 0, left: 0, right: 5},
		{v: 100, center: 100, left: 100, right: 100},
		{v: 99, center: 100, left: 100, right: 100},
		{v: 101, center: 100, left: 100, right: 100},
		{v: 0, center: 100, left: 100, right: 100},
		// Window bounds past the domain are clamped.
		{v: 255, center: 400, left: 200, right: 900},
		{v: 10, center: 7, left: 9, right: 2},
	}
	roundTrip(t, c, cases)

	for _, depth := range []int{0, 1, MaxSearchDepth} {
		c.MaxDepth = depth
		roundTrip(t, c, cases)
	}
}

func TestCoder_CenterIsCheapest(t *testing.T) {
	c := New(16)

	cost := func(v uint64) int {
		enc := arith.NewEncoder()
		defer enc.Release()
		for range 100 {
			require.NoError(t, c.Write(enc, v, 1000, 800, 1200))
		}

		return enc.BitCount()
	}

	center, side, tail, outside := cost(1000), cost(1040), cost(1190), cost(40000)
	assert.Less(t, center, side)
	assert.Less(t, side, tail)
	assert.Less(t, tail, outside)
	// The raw domain width is 16 bits; a centered value costs well under that.
	assert.Less(t, center, 100*12)
}

func TestCoder_NearMissCheaperThanFarMiss(t *testing.T) {
	c := New(32)

	cost := func(v uint64) int {
		enc := arith.NewEncoder()
		defer enc.Release()
		require.NoError(t, c.Write(enc, v, 1<<20, 1<<20-8, 1<<20+8))

		return enc.BitCount()
	}

	// With a full 32-bit domain both pay raw bits, but the near side pays fewer
	// half-square misses.
	near, far := cost(1<<20+9), cost(math.MaxUint32)
	assert.LessOrEqual(t, near, far)
}

func TestCoder_ValueOutsideDomain(t *testing.T) {
	c := New(4)
	enc := arith.NewEncoder()
	defer enc.Release()
	require.ErrorIs(t, c.Write(enc, 16, 0, 0, 3), errs.ErrValueOutOfRange)
}

func TestPulse_Segments(t *testing.T) {
	c := New(16)

	segs := c.Pulse(500, 0, 1000)
	require.Len(t, segs, 5)
	require.Equal(t, uint64(0), segs[0].Lo)
	require.Equal(t, uint64(1000), segs[len(segs)-1].Hi)
	for i := 1; i < len(segs); i++ {
		require.Equal(t, segs[i-1].Hi+1, segs[i].Lo, "segments must tile the window")
	}
	require.Equal(t, c.CenterHeight, segs[2].Height)
	require.Equal(t, c.SideHeight, segs[1].Height)
	require.Equal(t, uint32(1), segs[0].Height)
	require.True(t, segs[2].Lo <= 500 && 500 <= segs[2].Hi)

	// Center pinned to the window edge drops the empty lower segments.
	edge := c.Pulse(0, 0, 1000)
	require.Equal(t, uint64(0), edge[0].Lo)
	require.Equal(t, c.CenterHeight, edge[0].Height)

	weights, total := segmentWeights(segs, nil)
	require.LessOrEqual(t, total, uint32(arith.MaxTotal))
	for _, w := range weights {
		require.GreaterOrEqual(t, w, uint32(1))
	}
}

func BenchmarkCoder_Write(b *testing.B) {
	c := New(16)
	enc := arith.NewEncoder()
	defer enc.Release()

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		_ = c.Write(enc, uint64(1000+i%50), 1000, 900, 1100)
	}
}
