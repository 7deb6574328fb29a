// Package manager ties the policy registry, the chunk library and the
// statistics store together for one process.
//
// A Manager hands out chunk IDs for object layouts, frames object updates on
// the wire and runs the background task that persists the error statistics
// gathered by error-distribution policies.
package manager

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/deltapack/chunk"
	"github.com/arloliu/deltapack/internal/options"
	"github.com/arloliu/deltapack/registry"
	"github.com/arloliu/deltapack/stats"
)

// DefaultInterval is the default period of the statistics task.
const DefaultInterval = time.Minute

// Option configures a Manager.
type Option = options.Option[*Manager]

// WithLogger sets the logger of the statistics task and of layout warnings.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	})
}

// WithInterval sets the statistics task period.
func WithInterval(d time.Duration) Option {
	return options.New(func(m *Manager) error {
		if d <= 0 {
			return fmt.Errorf("invalid statistics interval: %s", d)
		}
		m.interval = d

		return nil
	})
}

// WithIntegrity enables the integrity tag and op count in object headers.
// Both peers must agree on the setting.
func WithIntegrity(enabled bool) Option {
	return options.NoError(func(m *Manager) {
		m.integrity = enabled
	})
}

// WithSessionID sets the session under which statistics are persisted. The
// default is a random UUID.
func WithSessionID(id string) Option {
	return options.New(func(m *Manager) error {
		if id == "" {
			return fmt.Errorf("empty session id")
		}
		m.session = id

		return nil
	})
}

// WithSeeds sets the read-only statistics that seed the coding tables: write
// for this process's write tables and read for the read tables, which must
// hold the remote peer's write statistics. A nil read uses write.
func WithSeeds(write, read stats.Source) Option {
	return options.NoError(func(m *Manager) {
		if read == nil {
			read = write
		}
		m.seedWrite, m.seedRead = write, read
	})
}

type layoutKey struct {
	typ     reflect.Type
	profile uint8
}

// Manager is safe for concurrent use.
type Manager struct {
	registry  *registry.Registry
	store     stats.Store
	seedWrite stats.Source
	seedRead  stats.Source
	library   *chunk.Library
	logger    *slog.Logger
	interval  time.Duration
	integrity bool
	session   string

	mu  sync.RWMutex
	ids map[layoutKey]chunk.ID

	task statsTask
}

// New creates a manager resolving policies through reg. store receives what
// the statistics task learns; it may be nil, which disables persistence.
// Coding tables are never seeded from store, see WithSeeds.
func New(reg *registry.Registry, store stats.Store, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, fmt.Errorf("manager requires a policy registry")
	}

	m := &Manager{
		registry: reg,
		store:    store,
		library:  chunk.NewLibrary(),
		logger:   slog.Default(),
		interval: DefaultInterval,
		session:  uuid.NewString(),
		ids:      make(map[layoutKey]chunk.ID),
	}
	if err := options.Apply(m, opts...); err != nil {
		return nil, err
	}

	m.task.init()
	m.library.OnCollision(func(existing, added *chunk.Chunk, total int) {
		m.logger.Warn("chunk layouts share a fingerprint, integrity tags are ambiguous",
			"fingerprint", fmt.Sprintf("%016x", added.Fingerprint()),
			"existing", existing.Signature(),
			"added", added.Signature(),
			"collisions", total)
	})

	return m, nil
}

// Registry returns the policy registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Store returns the statistics store, or nil.
func (m *Manager) Store() stats.Store {
	return m.store
}

// Session returns the statistics session ID.
func (m *Manager) Session() string {
	return m.session
}

// Integrity reports whether object headers carry the integrity fields.
func (m *Manager) Integrity() bool {
	return m.integrity
}

// Library returns the chunk library.
func (m *Manager) Library() *chunk.Library {
	return m.library
}

// ChunkID returns the ID of obj's layout for profile, building and interning
// the chunk on first use. Layouts are cached per concrete object type and
// profile.
func (m *Manager) ChunkID(obj chunk.Object, profile uint8) (chunk.ID, error) {
	key := layoutKey{typ: reflect.TypeOf(obj), profile: profile}

	m.mu.RLock()
	id, ok := m.ids[key]
	m.mu.RUnlock()
	if ok {
		return id, nil
	}

	c, err := chunk.Build(obj, profile, m.registry)
	if err != nil {
		return 0, err
	}
	id, _, err = m.library.Intern(c)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.ids[key] = id
	m.mu.Unlock()

	return id, nil
}

// Chunk returns the interned chunk with the given ID.
func (m *Manager) Chunk(id chunk.ID) (*chunk.Chunk, error) {
	return m.library.Get(id)
}

// ChunkFor returns obj's compiled chunk for profile.
func (m *Manager) ChunkFor(obj chunk.Object, profile uint8) (*chunk.Chunk, error) {
	id, err := m.ChunkID(obj, profile)
	if err != nil {
		return nil, err
	}

	return m.library.Get(id)
}
