// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/stats"
)

// Storage backends for statistics.
const (
	BackendDir    = "dir"
	BackendBadger = "badger"
)

// Config is the environment configuration of a deltapack process.
//
// StatsDir is where the statistics task writes what it learns. The coding
// tables are seeded from separate read-only directories: StatsSeedDir for
// this process's write tables and StatsPeerSeedDir, defaulting to
// StatsSeedDir, for the read tables that mirror the remote peer.
type Config struct {
	PolicyFiles      []string      `env:"DELTAPACK_POLICY_FILES" envSeparator:","`
	StatsDir         string        `env:"DELTAPACK_STATS_DIR" envDefault:"stats"`
	StatsBackend     string        `env:"DELTAPACK_STATS_BACKEND" envDefault:"dir"`
	StatsInterval    time.Duration `env:"DELTAPACK_STATS_INTERVAL" envDefault:"1m"`
	StatsFormat      string        `env:"DELTAPACK_STATS_FORMAT" envDefault:"yaml"`
	StatsCompression string        `env:"DELTAPACK_STATS_COMPRESSION" envDefault:"none"`
	StatsSeedDir     string        `env:"DELTAPACK_STATS_SEED_DIR"`
	StatsPeerSeedDir string        `env:"DELTAPACK_STATS_PEER_SEED_DIR"`
	Integrity        bool          `env:"DELTAPACK_INTEGRITY" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values that parse as strings.
func (c Config) Validate() error {
	if c.StatsInterval <= 0 {
		return fmt.Errorf("DELTAPACK_STATS_INTERVAL must be positive, got %s", c.StatsInterval)
	}
	if c.StatsBackend != BackendDir && c.StatsBackend != BackendBadger {
		return fmt.Errorf("DELTAPACK_STATS_BACKEND must be %q or %q, got %q", BackendDir, BackendBadger, c.StatsBackend)
	}
	if _, err := format.ParseStatsFormat(c.StatsFormat); err != nil {
		return fmt.Errorf("DELTAPACK_STATS_FORMAT: %w", err)
	}
	if _, err := format.ParseCompressionType(c.StatsCompression); err != nil {
		return fmt.Errorf("DELTAPACK_STATS_COMPRESSION: %w", err)
	}

	return nil
}

// OpenStore opens the configured statistics store.
func (c Config) OpenStore() (stats.Store, error) {
	if c.StatsBackend == BackendBadger {
		return stats.NewBadgerStore(c.StatsDir)
	}

	f, err := format.ParseStatsFormat(c.StatsFormat)
	if err != nil {
		return nil, err
	}
	comp, err := format.ParseCompressionType(c.StatsCompression)
	if err != nil {
		return nil, err
	}

	return stats.NewDirStore(c.StatsDir, stats.WithFormat(f), stats.WithCompression(comp))
}

// OpenSeeds opens the read-only statistics directories that seed the write
// and read tables. Both are nil when no seed directory is configured; read
// falls back to write. The directories must exist.
func (c Config) OpenSeeds() (write, read *stats.DirStore, err error) {
	peerDir := c.StatsPeerSeedDir
	if peerDir == "" {
		peerDir = c.StatsSeedDir
	}
	if c.StatsSeedDir == "" && peerDir == "" {
		return nil, nil, nil
	}

	if c.StatsSeedDir != "" {
		if write, err = openSeed("DELTAPACK_STATS_SEED_DIR", c.StatsSeedDir); err != nil {
			return nil, nil, err
		}
	}
	if peerDir == c.StatsSeedDir {
		return write, write, nil
	}
	if read, err = openSeed("DELTAPACK_STATS_PEER_SEED_DIR", peerDir); err != nil {
		return nil, nil, err
	}

	return write, read, nil
}

func openSeed(name, dir string) (*stats.DirStore, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %s is not a directory", name, dir)
	}

	return stats.NewDirStore(dir)
}
