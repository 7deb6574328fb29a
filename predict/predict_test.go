package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

func TestParams_Normalize(t *testing.T) {
	p := Params{OffMin: 50, OffMax: 10}.Normalize()
	def := DefaultParams()

	require.Equal(t, def.TimeBase, p.TimeBase)
	require.Equal(t, def.Alpha, p.Alpha)
	require.Equal(t, def.FastAlpha, p.FastAlpha)
	require.Equal(t, def.OffDecay, p.OffDecay)
	require.Equal(t, 10.0, p.OffMin)
	require.Equal(t, 50.0, p.OffMax)

	require.Equal(t, def, Params{}.Normalize())
}

func TestPredict_NoHistoryCoversRange(t *testing.T) {
	p := DefaultParams()
	var s State

	center, left, right := p.Predict(&s, p.Elapsed(&s, 1, 0), 0, 255)
	require.Equal(t, int64(127), center)
	require.Equal(t, int64(0), left)
	require.Equal(t, int64(255), right)
}

func TestPredict_ConstantValueConverges(t *testing.T) {
	p := DefaultParams()
	var s State

	const value = 500
	prevOff := 0.0
	for i := range 40 {
		elapsed := p.Elapsed(&s, 1, 0)
		center, left, right := p.Predict(&s, elapsed, 0, 1023)
		require.LessOrEqual(t, left, center)
		require.LessOrEqual(t, center, right)

		p.Update(&s, value, center, elapsed, 0)
		if i > 1 {
			require.LessOrEqual(t, s.Off, prevOff, "update %d", i)
		}
		prevOff = s.Off
	}

	require.InDelta(t, 0, s.Delta, 1e-9)
	require.Equal(t, p.OffMin, s.Off)

	center, left, right := p.Predict(&s, 1, 0, 1023)
	require.Equal(t, int64(value), center)
	require.Equal(t, int64(value-1), left)
	require.Equal(t, int64(value+1), right)
}

func TestPredict_LinearMotion(t *testing.T) {
	p := DefaultParams()
	var s State

	var center int64
	for i := range 60 {
		actual := int64(100 + 3*i)
		elapsed := p.Elapsed(&s, 1, 0)
		center, _, _ = p.Predict(&s, elapsed, 0, 1000)
		p.Update(&s, actual, center, elapsed, 0)
	}

	require.InDelta(t, 3, s.Delta, 0.01)
	center, left, right := p.Predict(&s, 1, 0, 1000)
	require.Equal(t, int64(100+3*60), center)
	require.LessOrEqual(t, right-left, int64(4))

	// Skipped updates extrapolate further.
	far, _, _ := p.Predict(&s, p.Elapsed(&s, 4, 0), 0, 1000)
	require.Equal(t, int64(100+3*59+12), far)
}

func TestUpdate_MissDoublesOff(t *testing.T) {
	p := DefaultParams()
	s := State{Last: 10, Off: 4, Valid: true, Age: 10}

	p.Update(&s, 30, 10, 1, 0)
	require.Equal(t, 20.0, s.Off)

	s.Off = 4
	p.Update(&s, 35, 30, 1, 0)
	require.Equal(t, 8.0, s.Off)
}

func TestUpdate_ReversalAdaptsFaster(t *testing.T) {
	p := DefaultParams()
	rising := State{Last: 100, Delta: 5, LastDir: 1, Valid: true, Age: 10, Off: 10}
	steady := rising

	p.Update(&rising, 90, 105, 1, 0)
	p.Update(&steady, 110, 105, 1, 0)

	// Reversal: 5 + 0.75*(-10-5) = -6.25; same direction: 5 + 0.25*(10-5) = 6.25.
	assert.InDelta(t, -6.25, rising.Delta, 1e-9)
	assert.InDelta(t, 6.25, steady.Delta, 1e-9)
	assert.Equal(t, int8(-1), rising.LastDir)
}

func TestElapsed_WallTime(t *testing.T) {
	p := Params{TimeBase: format.TimeBaseWallTime, TimeUnit: 100}.Normalize()
	s := State{Valid: true, LastTime: 1000}

	require.Equal(t, 2.5, p.Elapsed(&s, 7, 1250))
	require.Zero(t, p.Elapsed(&s, 7, 900))

	age := DefaultParams()
	require.Equal(t, 7.0, age.Elapsed(&s, 7, 1250))
	require.Equal(t, 1.0, age.Elapsed(&s, 0, 1250))
}

func TestPredict_ClampsToRange(t *testing.T) {
	p := DefaultParams()
	s := State{Last: 250, Delta: 10, Off: 8, Valid: true}

	center, left, right := p.Predict(&s, 3, 0, 255)
	require.Equal(t, int64(255), center)
	require.Equal(t, int64(247), left)
	require.Equal(t, int64(255), right)
}

func TestState_MarshalRoundTrip(t *testing.T) {
	p := DefaultParams()
	var original State
	for i := range 10 {
		elapsed := p.Elapsed(&original, 1, uint64(i))
		center, _, _ := p.Predict(&original, elapsed, 0, 1<<20)
		p.Update(&original, int64(i*i), center, elapsed, uint64(i))
	}

	w := memento.NewWriter(nil)
	original.Marshal(w)

	var restored State
	r := memento.NewReader(w.Bytes())
	require.NoError(t, restored.Unmarshal(r))
	require.NoError(t, r.Done())
	require.Equal(t, original, restored)

	c1, l1, r1 := p.Predict(&original, 1, 0, 1<<20)
	c2, l2, r2 := p.Predict(&restored, 1, 0, 1<<20)
	require.Equal(t, []int64{c1, l1, r1}, []int64{c2, l2, r2})

	var empty State
	w.Reset()
	empty.Marshal(w)
	require.Equal(t, []byte{0}, w.Bytes())

	err := restored.Unmarshal(memento.NewReader([]byte{1, 2}))
	require.Error(t, err)
}
