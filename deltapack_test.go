package deltapack

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/chunk"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/manager"
	"github.com/arloliu/deltapack/model"
	"github.com/arloliu/deltapack/policy"
)

const policies = `
policies:
  - name: position
    impl: error_dist
    params: {min: -1000, max: 1000, bits: 16, channel: world}
  - name: health
    impl: ranged_int
    params: {min: 0, max: 100}
`

type unit struct {
	pos    [3]float64
	health int64
}

func (u *unit) NetSerialize(s chunk.Serializer, _ uint8) error {
	if err := chunk.Vec3(s, "pos", "position", &u.pos); err != nil {
		return err
	}

	return chunk.Int(s, "health", "health", format.TypeUint8, &u.health)
}

func testConfig(t *testing.T, backend string) Config {
	t.Helper()

	dir := t.TempDir()
	file := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(file, []byte(policies), 0o600))

	return Config{
		PolicyFiles:      []string{file},
		StatsDir:         filepath.Join(dir, "stats"),
		StatsBackend:     backend,
		StatsInterval:    time.Hour,
		StatsFormat:      "msgpack",
		StatsCompression: "zstd",
		Integrity:        true,
	}
}

func exchange(t *testing.T, rt *Runtime, frames int) {
	t.Helper()

	txCall := policy.Call{Age: 1, Model: model.NewChannelModel()}
	rxCall := policy.Call{Age: 1, Model: model.NewChannelModel()}
	src := &unit{health: 90}
	tx, err := rt.NewMementos(src, 0)
	require.NoError(t, err)
	rx, err := rt.NewMementos(src, 0)
	require.NoError(t, err)

	for i := range frames {
		src.pos = [3]float64{float64(i) * 2.5, 10, -float64(i)}
		enc := arith.NewEncoder()
		require.NoError(t, rt.WriteObject(enc, 5, src, 0, tx, txCall))
		dec := arith.NewDecoder(enc.Finish())
		enc.Release()

		h, err := manager.ReadHeader(dec)
		require.NoError(t, err)
		got := &unit{}
		require.NoError(t, rt.ReadObject(dec, h, got, rx, rxCall))
		require.Equal(t, src.health, got.health)
		require.InDelta(t, src.pos[0], got.pos[0], 2000.0/65535)
	}
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{"dir", "badger"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, backend)

			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			rt, err := Open(ctx, cfg, WithLogger(logger), WithManagerOptions(manager.WithSessionID("first")))
			require.NoError(t, err)
			require.True(t, rt.Integrity())
			require.Equal(t, "first", rt.Session())
			require.Contains(t, logs.String(), "deltapack runtime opened")
			require.NotContains(t, logs.String(), "write_seeded")

			exchange(t, rt, 16)
			require.NoError(t, rt.Close(ctx))

			// Close flushed what was learned.
			store, err := cfg.OpenStore()
			require.NoError(t, err)
			defer store.Close()
			snaps, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, snaps, 1)
			require.Equal(t, "position", snaps[0].Key)
		})
	}
}

func TestOpen_Seeded(t *testing.T) {
	ctx := context.Background()
	learn := testConfig(t, "dir")

	rt, err := Open(ctx, learn, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	exchange(t, rt, 16)
	require.NoError(t, rt.Close(ctx))
	learned, err := os.ReadDir(learn.StatsDir)
	require.NoError(t, err)

	// The next build ships what the first one learned as its seed.
	cfg := testConfig(t, "dir")
	cfg.StatsSeedDir = learn.StatsDir
	var logs bytes.Buffer
	rt, err = Open(ctx, cfg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	require.Contains(t, logs.String(), "write_seeded=1")
	require.Contains(t, logs.String(), "read_seeded=1")

	exchange(t, rt, 16)
	require.NoError(t, rt.Close(ctx))

	// The second run learned into its own store only.
	after, err := os.ReadDir(learn.StatsDir)
	require.NoError(t, err)
	require.Equal(t, len(learned), len(after))
	own, err := os.ReadDir(cfg.StatsDir)
	require.NoError(t, err)
	require.Len(t, own, 1)
}

func TestOpen_SkipsBadEntries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "dir")
	extra := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(extra, []byte(`
policies:
  - name: orphan
    alias: nowhere
  - name: mystery
    impl: teleport
`), 0o600))
	cfg.PolicyFiles = append(cfg.PolicyFiles, extra)

	var logs bytes.Buffer
	rt, err := Open(ctx, cfg, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.Contains(t, logs.String(), "level=WARN")
	require.Contains(t, logs.String(), "orphan")
	require.Contains(t, logs.String(), "teleport")
	_, ok := rt.Registry().Lookup("orphan")
	require.False(t, ok)

	exchange(t, rt, 4)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, "dir")
	cfg.StatsInterval = 0
	_, err := Open(ctx, cfg)
	require.Error(t, err)

	cfg = testConfig(t, "dir")
	cfg.PolicyFiles = []string{filepath.Join(t.TempDir(), "missing.yaml")}
	_, err = Open(ctx, cfg)
	require.ErrorContains(t, err, "load policies")

	cfg = testConfig(t, "dir")
	malformed := filepath.Join(t.TempDir(), "malformed.yaml")
	require.NoError(t, os.WriteFile(malformed, []byte("policies: {"), 0o600))
	cfg.PolicyFiles = []string{malformed}
	_, err = Open(ctx, cfg)
	require.ErrorIs(t, err, errs.ErrInvalidPolicyConfig)

	cfg = testConfig(t, "dir")
	cfg.StatsSeedDir = filepath.Join(t.TempDir(), "missing")
	_, err = Open(ctx, cfg)
	require.ErrorContains(t, err, "open stats seeds")

	cfg = testConfig(t, "dir")
	_, err = Open(ctx, cfg, WithManagerOptions(manager.WithSessionID("")))
	require.Error(t, err)
}

func TestOpen_WithoutSeeding(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer

	cfg := testConfig(t, "dir")
	cfg.StatsSeedDir = t.TempDir()
	rt, err := Open(ctx, cfg, WithoutSeeding(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	require.NotContains(t, logs.String(), "write_seeded")
	require.NoError(t, rt.Close(ctx))
}

func TestNewRegistry(t *testing.T) {
	cfg := testConfig(t, "dir")

	reg, err := NewRegistry(slog.New(slog.DiscardHandler), cfg.PolicyFiles...)
	require.NoError(t, err)
	_, ok := reg.Lookup("position")
	require.True(t, ok)

	reg, err = NewRegistry(nil)
	require.NoError(t, err)
	_, ok = reg.Lookup("position")
	require.False(t, ok)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DELTAPACK_STATS_BACKEND", "badger")
	t.Setenv("DELTAPACK_INTEGRITY", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.StatsBackend)
	require.True(t, cfg.Integrity)
	require.Equal(t, time.Minute, cfg.StatsInterval)
}
