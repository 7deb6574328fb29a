// Package deltapack provides predictive, adaptive entropy coding for the delta
// state of networked game objects.
//
// Objects describe their synchronized fields once through a visitor; the
// layout is compiled into a chunk whose fields are each coded by a named
// compression policy. Policies quantize, predict and arithmetic-code values
// against per-connection state, so a field that moves smoothly or stays put
// costs a fraction of its raw width.
//
// # Core Features
//
//   - 32-bit range coder with adaptive flat, hierarchical and move-to-front models
//   - Quantization with five rounding methods
//   - Age and wall-time value prediction with pulse-shaped error coding
//   - Error-distribution coding seeded from statistics of earlier sessions
//   - YAML policy documents with aliases and own/other composites
//   - Statistics stores on disk (YAML or msgpack, optionally compressed) or in Badger
//   - Optional per-object integrity tags
//
// # Basic Usage
//
// Describing an object:
//
//	type Player struct {
//	    Pos    [3]float64
//	    Health int64
//	}
//
//	func (p *Player) NetSerialize(s chunk.Serializer, profile uint8) error {
//	    if err := chunk.Vec3(s, "pos", "position", &p.Pos); err != nil {
//	        return err
//	    }
//	    return chunk.Int(s, "health", "health", format.TypeUint8, &p.Health)
//	}
//
// Opening a runtime from the environment and writing an update:
//
//	cfg, _ := deltapack.LoadConfig()
//	rt, _ := deltapack.Open(ctx, cfg)
//	defer rt.Close(ctx)
//	_ = rt.Start(ctx)
//
//	set, _ := rt.NewMementos(player, 0)
//	enc := arith.NewEncoder()
//	_ = rt.WriteObject(enc, 17, player, 0, set, policy.Call{Age: 1, Model: conn.Model})
//	packet := enc.Finish()
//
// # Package Structure
//
// This package wires the registry, the statistics store and the manager from
// a Config. For finer control, use the registry, stats, chunk and manager
// packages directly.
package deltapack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/arloliu/deltapack/internal/config"
	"github.com/arloliu/deltapack/internal/options"
	"github.com/arloliu/deltapack/manager"
	"github.com/arloliu/deltapack/registry"
	"github.com/arloliu/deltapack/stats"
)

// Config is the process configuration. See LoadConfig for the environment
// variables that fill it.
type Config = config.Config

// LoadConfig reads the configuration from DELTAPACK_* environment variables.
func LoadConfig() (Config, error) {
	return config.Load()
}

type settings struct {
	logger      *slog.Logger
	factories   []registry.Option
	managerOpts []manager.Option
	noSeed      bool
}

// Option configures Open.
type Option = options.Option[*settings]

// WithLogger sets the logger of every component.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithFactory adds a policy implementation to the registry.
func WithFactory(impl string, f registry.Factory) Option {
	return options.NoError(func(s *settings) {
		s.factories = append(s.factories, registry.WithFactory(impl, f))
	})
}

// WithManagerOptions passes extra options to the manager. They apply after
// the options derived from Config.
func WithManagerOptions(opts ...manager.Option) Option {
	return options.NoError(func(s *settings) {
		s.managerOpts = append(s.managerOpts, opts...)
	})
}

// WithoutSeeding skips loading seed statistics at Open.
func WithoutSeeding() Option {
	return options.NoError(func(s *settings) {
		s.noSeed = true
	})
}

// Runtime is a Manager together with the stores it owns.
type Runtime struct {
	*manager.Manager
	store stats.Store
	seeds []*stats.DirStore
}

// NewRegistry creates a registry and loads the given policy files into it.
// Unreadable or malformed files fail; entries that cannot be registered are
// logged and skipped.
func NewRegistry(logger *slog.Logger, files ...string) (*registry.Registry, error) {
	reg, err := registry.New(registry.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := loadPolicies(reg, files); err != nil {
		return nil, err
	}

	return reg, nil
}

func loadPolicies(reg *registry.Registry, files []string) error {
	if len(files) == 0 {
		return nil
	}

	doc, err := registry.ReadFiles(files...)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	// Skipped entries are logged by Load; their fields fail to build.
	_ = reg.Load(doc)

	return nil
}

// Open builds the policy registry from cfg.PolicyFiles, opens the statistics
// store and seeds the error-distribution policies from the read-only seed
// directories. Failing to seed is logged; the affected policies use their
// fallback coding.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Runtime, error) {
	s := &settings{logger: slog.Default()}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg, err := registry.New(append([]registry.Option{registry.WithLogger(s.logger)}, s.factories...)...)
	if err != nil {
		return nil, err
	}
	if err := loadPolicies(reg, cfg.PolicyFiles); err != nil {
		return nil, err
	}

	rt := &Runtime{}
	var seedWrite, seedRead *stats.DirStore
	if !s.noSeed {
		if seedWrite, seedRead, err = cfg.OpenSeeds(); err != nil {
			return nil, fmt.Errorf("open stats seeds: %w", err)
		}
		rt.addSeed(seedWrite)
		rt.addSeed(seedRead)
	}

	if rt.store, err = cfg.OpenStore(); err != nil {
		_ = rt.closeSeeds()
		return nil, fmt.Errorf("open stats store: %w", err)
	}

	mopts := []manager.Option{
		manager.WithLogger(s.logger),
		manager.WithInterval(cfg.StatsInterval),
		manager.WithIntegrity(cfg.Integrity),
	}
	if seedWrite != nil || seedRead != nil {
		mopts = append(mopts, manager.WithSeeds(source(seedWrite), source(seedRead)))
	}
	if rt.Manager, err = manager.New(reg, rt.store, append(mopts, s.managerOpts...)...); err != nil {
		_ = rt.closeStores()
		return nil, err
	}

	if seedWrite != nil || seedRead != nil {
		write, read, err := rt.Seed(ctx)
		if err != nil {
			s.logger.Warn("seeding error distributions failed", "error", err)
		}
		s.logger.Info("deltapack runtime opened",
			"write_seeded", write, "read_seeded", read,
			"stats_backend", cfg.StatsBackend, "stats_dir", cfg.StatsDir)
	} else {
		s.logger.Info("deltapack runtime opened", "stats_backend", cfg.StatsBackend, "stats_dir", cfg.StatsDir)
	}

	return rt, nil
}

// source keeps a nil *stats.DirStore from becoming a non-nil interface.
func source(s *stats.DirStore) stats.Source {
	if s == nil {
		return nil
	}

	return s
}

func (r *Runtime) addSeed(s *stats.DirStore) {
	if s == nil {
		return
	}
	if !slices.Contains(r.seeds, s) {
		r.seeds = append(r.seeds, s)
	}
}

func (r *Runtime) closeSeeds() error {
	var errList []error
	for _, s := range r.seeds {
		errList = append(errList, s.Close())
	}

	return errors.Join(errList...)
}

func (r *Runtime) closeStores() error {
	return errors.Join(r.store.Close(), r.closeSeeds())
}

// Close stops the statistics task, flushes once more and closes the stores.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(r.Stop(ctx), r.closeStores())
}
