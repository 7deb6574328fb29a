// Package collision detects fingerprint collisions between chunk layouts.
package collision

import (
	"fmt"

	"github.com/arloliu/deltapack/errs"
)

// Tracker maps layout fingerprints to the signatures that produced them.
//
// Two different signatures with the same fingerprint are a collision: the
// layouts stay distinct (they are keyed by signature) but their integrity
// tags cannot tell them apart. Tracker is not safe for concurrent use.
type Tracker struct {
	signatures map[uint64]string
	collisions int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		signatures: make(map[uint64]string),
	}
}

// Track records sig under fp and reports whether fp was already held by a
// different signature.
//
// Returns errs.ErrInvalidLayout for an empty signature and
// errs.ErrDuplicateLayout if sig was tracked before.
func (t *Tracker) Track(sig string, fp uint64) (bool, error) {
	if sig == "" {
		return false, fmt.Errorf("%w: empty signature", errs.ErrInvalidLayout)
	}

	collided := false
	if existing, ok := t.signatures[fp]; ok {
		if existing == sig {
			return false, fmt.Errorf("%w: %016x", errs.ErrDuplicateLayout, fp)
		}
		collided = true
		t.collisions++
	} else {
		t.signatures[fp] = sig
	}

	return collided, nil
}

// HasCollision reports whether any collision was detected.
func (t *Tracker) HasCollision() bool {
	return t.collisions > 0
}

// Collisions returns the number of colliding signatures tracked.
func (t *Tracker) Collisions() int {
	return t.collisions
}
