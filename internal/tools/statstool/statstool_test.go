package statstool

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/stats"
)

func sample(session string, scale uint64) *stats.Snapshot {
	return &stats.Snapshot{
		Key:           "position",
		Channel:       "move",
		Session:       session,
		Counts:        []uint64{10 * scale, 4 * scale, 2 * scale, 0, scale},
		ZeroAfterZero: [2][2]uint64{{scale, 2 * scale}, {3 * scale, 4 * scale}},
		Buckets:       []uint64{0, scale, scale},
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	err := Run(context.Background(), args, &out, &errOut)

	return out.String(), errOut.String(), err
}

func writeSample(t *testing.T, dir, name string, snap *stats.Snapshot) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, stats.WritePath(path, snap))

	return path
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeSample(t, dir, "a.yaml", sample("s1", 1))
	packed := writeSample(t, dir, "b.msgpack.zst", sample("s2", 2))

	out, _, err := run(t, "inspect", yamlPath, packed)
	require.NoError(t, err)
	require.Contains(t, out, yamlPath)
	require.Contains(t, out, packed)
	require.Contains(t, out, "position.move")
	require.Contains(t, out, "escape")
	require.Contains(t, out, "58.8%") // 10 of 17
	require.Contains(t, out, "bit lengths  1:1 2:1")

	out, _, err = run(t, "inspect", "-n", "2", yamlPath)
	require.NoError(t, err)
	require.Contains(t, out, "... 3 more indices, 3 observations")

	_, _, err = run(t, "inspect")
	require.Error(t, err)
	_, _, err = run(t, "inspect", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := writeSample(t, dir, "a.yaml", sample("s1", 1))
	b := writeSample(t, dir, "b.msgpack", sample("s2", 2))
	outPath := filepath.Join(dir, "merged.yaml.lz4")

	_, logs, err := run(t, "merge", "-o", outPath, "-session", "all", a, b)
	require.NoError(t, err)
	require.Contains(t, logs, "merged statistics")

	merged, err := stats.ReadPath(outPath)
	require.NoError(t, err)
	require.Equal(t, "all", merged.Session)
	require.Equal(t, []uint64{30, 12, 6, 0, 3}, merged.Counts)
	require.Equal(t, [2][2]uint64{{3, 6}, {9, 12}}, merged.ZeroAfterZero)

	other := sample("s3", 1)
	other.Channel = "aim"
	c := writeSample(t, dir, "c.yaml", other)

	tests := []struct {
		name string
		args []string
	}{
		{"no output", []string{"merge", a}},
		{"no inputs", []string{"merge", "-o", outPath}},
		{"different ids", []string{"merge", "-o", outPath, a, c}},
		{"bad flag", []string{"merge", "-x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestTrim(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, "a.yaml", sample("s1", 1))

	trimmed := filepath.Join(dir, "trimmed.msgpack.s2")
	_, _, err := run(t, "trim", "-o", trimmed, path)
	require.NoError(t, err)

	snap, err := stats.ReadPath(trimmed)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 4, 2, 1}, snap.Counts)

	orig, err := stats.ReadPath(path)
	require.NoError(t, err)
	require.Len(t, orig.Counts, 5)

	// In place, twice: trimming is idempotent.
	for range 2 {
		_, _, err = run(t, "trim", path)
		require.NoError(t, err)
		snap, err = stats.ReadPath(path)
		require.NoError(t, err)
		require.Equal(t, []uint64{10, 4, 2, 1}, snap.Counts)
	}

	_, _, err = run(t, "trim")
	require.Error(t, err)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DELTAPACK_STATS_DIR", dir)
	t.Setenv("DELTAPACK_STATS_BACKEND", "dir")

	store, err := stats.NewDirStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sample("s1", 1)))
	require.NoError(t, store.Save(ctx, sample("s2", 1)))
	require.NoError(t, store.Close())

	out, _, err := run(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "ID")
	require.Regexp(t, `position\.move\s+34\s+4`, out)

	other := t.TempDir()
	out, _, err = run(t, "list", "-dir", other)
	require.NoError(t, err)
	require.NotContains(t, out, "position.move")

	_, _, err = run(t, "list", "-backend", "sqlite")
	require.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	_, errOut, err := run(t)
	require.Error(t, err)
	require.Contains(t, errOut, "usage: deltapack-stats")

	out, _, err := run(t, "help")
	require.NoError(t, err)
	require.Contains(t, out, "inspect")

	_, _, err = run(t, "explode")
	require.ErrorContains(t, err, `unknown command "explode"`)
}
