// Package predict extrapolates the next quantized value of a field from its
// history and learns how far off those extrapolations tend to be.
//
// A State is the per-field history and lives in the field's memento; Params
// are the immutable policy configuration. Predictions are made in code space
// (quantized integers) so encoder and decoder compute bit-identical windows.
package predict

import (
	"math"

	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

// Params configures a predictor.
type Params struct {
	// TimeBase selects how elapsed time is measured between updates.
	TimeBase format.TimeBase
	// Alpha is the weight of a new rate observation in the smoothed rate.
	Alpha float64
	// FastAlpha replaces Alpha right after a direction reversal.
	FastAlpha float64
	// OffMin and OffMax bound the uncertainty radius, in codes.
	OffMin float64
	OffMax float64
	// OffDecay is the weight kept by the old radius when a prediction hits.
	OffDecay float64
	// TimeUnit is the number of wall-time ticks per rate unit (WallTime base).
	TimeUnit float64
}

// DefaultParams returns the parameters used when a policy configures none.
func DefaultParams() Params {
	return Params{
		TimeBase:  format.TimeBaseAge,
		Alpha:     0.25,
		FastAlpha: 0.75,
		OffMin:    1,
		OffMax:    1 << 16,
		OffDecay:  0.75,
		TimeUnit:  1000,
	}
}

// Normalize fills zero fields from DefaultParams and orders the radius bounds.
func (p Params) Normalize() Params {
	def := DefaultParams()
	if p.TimeBase == 0 {
		p.TimeBase = def.TimeBase
	}
	if p.Alpha <= 0 || p.Alpha > 1 {
		p.Alpha = def.Alpha
	}
	if p.FastAlpha <= 0 || p.FastAlpha > 1 {
		p.FastAlpha = max(def.FastAlpha, p.Alpha)
	}
	if p.OffMin <= 0 {
		p.OffMin = def.OffMin
	}
	if p.OffMax <= 0 {
		p.OffMax = def.OffMax
	}
	if p.OffMax < p.OffMin {
		p.OffMin, p.OffMax = p.OffMax, p.OffMin
	}
	if p.OffDecay <= 0 || p.OffDecay >= 1 {
		p.OffDecay = def.OffDecay
	}
	if p.TimeUnit <= 0 {
		p.TimeUnit = def.TimeUnit
	}

	return p
}

// State is the history of one field.
type State struct {
	Last     int64
	Delta    float64
	Off      float64
	LastTime uint64
	Age      uint32
	LastDir  int8
	Valid    bool
}

// Elapsed returns the time since the last update in rate units. age is the
// number of updates the sender skipped plus one; now is the wall clock.
func (p Params) Elapsed(s *State, age uint32, now uint64) float64 {
	if !s.Valid {
		return 0
	}
	if p.TimeBase == format.TimeBaseWallTime {
		if now <= s.LastTime {
			return 0
		}

		return float64(now-s.LastTime) / p.TimeUnit
	}

	return float64(max(age, 1))
}

// Predict returns the predicted code and the window [left,right] around it,
// all clamped into [lo,hi]. Without history the window is the whole range.
func (p Params) Predict(s *State, elapsed float64, lo, hi int64) (center, left, right int64) {
	if !s.Valid {
		return lo + (hi-lo)/2, lo, hi
	}

	c := float64(s.Last) + s.Delta*elapsed
	center = clamp(c, lo, hi)
	radius := int64(math.Ceil(min(s.Off, p.OffMax)))
	left = max(lo, center-radius)
	right = min(hi, center+radius)

	return center, left, right
}

// Update records the actual code and adapts the rate and the radius.
func (p Params) Update(s *State, actual, predicted int64, elapsed float64, now uint64) {
	if !s.Valid {
		*s = State{
			Last:     actual,
			Off:      p.OffMax,
			LastTime: now,
			Age:      1,
			Valid:    true,
		}

		return
	}

	if elapsed > 0 {
		change := float64(actual - s.Last)
		observed := change / elapsed

		dir := sign(change)
		alpha := p.Alpha
		if s.Age < 2 || (dir != 0 && s.LastDir != 0 && dir != s.LastDir) {
			alpha = p.FastAlpha
		}
		s.Delta += alpha * (observed - s.Delta)
		if math.Abs(s.Delta) < 1e-9 {
			s.Delta = 0
		}
		if dir != 0 {
			s.LastDir = dir
		}
	}

	miss := math.Abs(float64(actual - predicted))
	if miss > s.Off {
		s.Off = min(p.OffMax, max(2*s.Off, miss))
	} else {
		s.Off = max(p.OffMin, s.Off*p.OffDecay+miss*(1-p.OffDecay))
	}

	s.Last = actual
	s.LastTime = now
	if s.Age < math.MaxUint32 {
		s.Age++
	}
}

// Marshal appends s to a memento.
func (s *State) Marshal(w *memento.Writer) {
	w.Bool(s.Valid)
	if !s.Valid {
		return
	}
	w.Int64(s.Last)
	w.Float64(s.Delta)
	w.Float64(s.Off)
	w.Uint64(s.LastTime)
	w.Uint32(s.Age)
	w.Uint8(uint8(s.LastDir)) //nolint: gosec
}

// Unmarshal reads s from a memento.
func (s *State) Unmarshal(r *memento.Reader) error {
	*s = State{Valid: r.Bool()}
	if s.Valid {
		s.Last = r.Int64()
		s.Delta = r.Float64()
		s.Off = r.Float64()
		s.LastTime = r.Uint64()
		s.Age = r.Uint32()
		s.LastDir = int8(r.Uint8()) //nolint: gosec
	}

	return r.Err()
}

func clamp(v float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(v):
		return lo + (hi-lo)/2
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	default:
		return int64(math.Round(v))
	}
}

func sign(v float64) int8 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
