package chunk

import (
	"fmt"
	"math"
	"sync"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/internal/collision"
)

// ID identifies a chunk inside a Library.
type ID uint32

// Library interns structurally identical chunks so that every object with
// the same layout shares one program and one ID.
//
// Library is safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	chunks    []*Chunk
	byPrint   map[uint64][]ID
	tracker   *collision.Tracker
	onCollide func(existing, added *Chunk, total int)
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		byPrint: make(map[uint64][]ID),
		tracker: collision.NewTracker(),
	}
}

// OnCollision registers fn to be called, with the library lock held, when a
// new chunk shares its fingerprint with a structurally different one. total
// is the collision count including this one.
func (l *Library) OnCollision(fn func(existing, added *Chunk, total int)) {
	l.mu.Lock()
	l.onCollide = fn
	l.mu.Unlock()
}

// Intern returns the ID of the chunk compatible with c, adding c if none is.
// The returned chunk is the interned instance.
func (l *Library) Intern(c *Chunk) (ID, *Chunk, error) {
	if err := c.check(); err != nil {
		return 0, nil, err
	}

	fp := c.Fingerprint()
	if id, existing, ok := l.find(c, fp); ok {
		return id, existing, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check under the write lock; another goroutine may have added it.
	for _, id := range l.byPrint[fp] {
		if l.chunks[id].Compatible(c) {
			return id, l.chunks[id], nil
		}
	}

	collided, err := l.tracker.Track(c.Signature(), fp)
	if err != nil {
		return 0, nil, err
	}
	if collided && l.onCollide != nil {
		l.onCollide(l.chunks[l.byPrint[fp][0]], c, l.tracker.Collisions())
	}
	if uint64(len(l.chunks)) > math.MaxUint32 {
		return 0, nil, fmt.Errorf("%w: library full", errs.ErrChunkBuildFailed)
	}

	id := ID(len(l.chunks)) //nolint: gosec
	l.chunks = append(l.chunks, c)
	l.byPrint[fp] = append(l.byPrint[fp], id)

	return id, c, nil
}

func (l *Library) find(c *Chunk, fp uint64) (ID, *Chunk, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, id := range l.byPrint[fp] {
		if l.chunks[id].Compatible(c) {
			return id, l.chunks[id], true
		}
	}

	return 0, nil, false
}

// Get returns the chunk with the given ID.
func (l *Library) Get(id ID) (*Chunk, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if int(id) >= len(l.chunks) {
		return nil, fmt.Errorf("%w: %d", errs.ErrChunkNotFound, id)
	}

	return l.chunks[id], nil
}

// Len returns the number of interned chunks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.chunks)
}

// HasCollision reports whether two interned layouts share a fingerprint.
// Their integrity tags are then ambiguous.
func (l *Library) HasCollision() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tracker.HasCollision()
}

// Collisions returns how many interned layouts share a fingerprint with an
// earlier one.
func (l *Library) Collisions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tracker.Collisions()
}
