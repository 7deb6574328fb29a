package stats

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
)

const (
	badgerPrefix = "stats/"

	defaultBadgerValueLogFileSize = 64 * 1024 * 1024 // 64MB
)

type badgerConfig struct {
	inMemory         bool
	valueLogFileSize int64
}

// BadgerOption customizes how Badger is opened.
type BadgerOption func(*badgerConfig) error

// WithBadgerInMemory keeps the database in memory; the path is ignored.
func WithBadgerInMemory() BadgerOption {
	return func(cfg *badgerConfig) error {
		cfg.inMemory = true
		return nil
	}
}

// WithBadgerValueLogFileSize sets max bytes per value log (vlog) file.
func WithBadgerValueLogFileSize(sizeBytes int64) BadgerOption {
	return func(cfg *badgerConfig) error {
		if sizeBytes <= 0 {
			return fmt.Errorf("badger value log file size must be > 0, got %d", sizeBytes)
		}
		cfg.valueLogFileSize = sizeBytes
		return nil
	}
}

// BadgerStore keeps snapshots in a Badger database under
// stats/<id>/<session>, msgpack encoded.
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(path string, options ...BadgerOption) (*BadgerStore, error) {
	cfg := badgerConfig{
		valueLogFileSize: defaultBadgerValueLogFileSize,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(path)
	if cfg.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithValueLogFileSize(cfg.valueLogFileSize)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open stats db: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func recordKey(snap *Snapshot) []byte {
	return []byte(badgerPrefix + snap.ID() + "/" + snap.Session)
}

func idPrefix(id string) []byte {
	return []byte(badgerPrefix + id + "/")
}

// Save replaces the session's record.
func (s *BadgerStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	value, err := Marshal(snap, format.StatsMsgpack, format.CompressionNone)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(snap), value)
	})
}

// Load accumulates every session record of (key, channel).
func (s *BadgerStore) Load(ctx context.Context, key, channel string) (*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	records, err := s.scan(ctx, idPrefix(ID(key, channel)))
	if err != nil {
		return nil, err
	}

	acc := &Snapshot{Key: key, Channel: channel}
	found := false
	for _, rec := range records {
		if rec.Key == key && rec.Channel == channel {
			acc.Accumulate(rec)
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", errs.ErrStatsNotFound, ID(key, channel))
	}

	return acc, nil
}

// List returns every stored identifier accumulated across sessions.
func (s *BadgerStore) List(ctx context.Context) ([]*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	records, err := s.scan(ctx, []byte(badgerPrefix))
	if err != nil {
		return nil, err
	}

	return merge(records), nil
}

// Get returns a single session record.
func (s *BadgerStore) Get(ctx context.Context, key, channel, session string) (*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var snap *Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(&Snapshot{Key: key, Channel: channel, Session: session}))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s/%s", errs.ErrStatsNotFound, ID(key, channel), session)
			}
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		snap, err = Unmarshal(val, format.StatsMsgpack, format.CompressionNone)

		return err
	})

	return snap, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	return s.db.Close()
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return errs.ErrStoreClosed
	}

	return ctx.Err()
}

func (s *BadgerStore) scan(ctx context.Context, prefix []byte) ([]*Snapshot, error) {
	var out []*Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := Unmarshal(val, format.StatsMsgpack, format.CompressionNone)
			if err != nil {
				return fmt.Errorf("%s: %w", it.Item().Key(), err)
			}
			out = append(out, snap)
		}

		return nil
	})

	return out, err
}
