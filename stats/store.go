package stats

import (
	"context"
	"slices"
	"strings"
)

// Store persists per-session snapshots.
//
// Save replaces the record of (key, channel, session). Load accumulates the
// records of every session for (key, channel) and returns
// errs.ErrStatsNotFound when there are none. List returns one accumulated
// snapshot per identifier, ordered by ID. Operations after Close return
// errs.ErrStoreClosed.
type Store interface {
	Source
	Save(ctx context.Context, snap *Snapshot) error
	List(ctx context.Context) ([]*Snapshot, error)
	Close() error
}

// Source is the read side of a Store. Coding tables are seeded from
// Sources that the running process never writes to.
type Source interface {
	Load(ctx context.Context, key, channel string) (*Snapshot, error)
}

// merge accumulates per-session records into one snapshot per ID.
func merge(records []*Snapshot) []*Snapshot {
	byID := make(map[string]*Snapshot)
	for _, rec := range records {
		id := rec.ID()
		acc, ok := byID[id]
		if !ok {
			acc = &Snapshot{Key: rec.Key, Channel: rec.Channel}
			byID[id] = acc
		}
		acc.Accumulate(rec)
	}

	out := make([]*Snapshot, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Snapshot) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return out
}
