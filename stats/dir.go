package stats

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/arloliu/deltapack/compress"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/internal/options"
)

// sessionSep separates the identifier from the session in file names.
const sessionSep = "@"

// DirOption configures a DirStore.
type DirOption = options.Option[*DirStore]

// WithFormat sets the encoding of files written by the store.
func WithFormat(f format.StatsFormat) DirOption {
	return options.New(func(s *DirStore) error {
		if f != format.StatsYAML && f != format.StatsMsgpack {
			return fmt.Errorf("unsupported stats format: %s", f)
		}
		s.format = f

		return nil
	})
}

// WithCompression sets the compression of files written by the store.
func WithCompression(c format.CompressionType) DirOption {
	return options.New(func(s *DirStore) error {
		if _, err := compress.GetCodec(c); err != nil {
			return err
		}
		s.compression = c

		return nil
	})
}

// DirStore keeps one file per (key, channel, session) in a directory.
//
// File names are <id>@<session><format ext><compression ext>. Files of any
// supported format and compression are read regardless of the options used
// for writing, so a directory can be converted incrementally.
type DirStore struct {
	dir         string
	format      format.StatsFormat
	compression format.CompressionType
	closed      atomic.Bool
}

var _ Store = (*DirStore)(nil)

// NewDirStore opens dir, creating it if needed. Files are written as
// uncompressed YAML unless configured otherwise.
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	s := &DirStore{
		dir:         dir,
		format:      format.StatsYAML,
		compression: format.CompressionNone,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stats dir: %w", err)
	}

	return s, nil
}

// Dir returns the store directory.
func (s *DirStore) Dir() string {
	return s.dir
}

// FileName returns the base name the store writes snap to.
func (s *DirStore) FileName(snap *Snapshot) string {
	return snap.ID() + sessionSep + snap.Session + s.format.Extension() + s.compression.Extension()
}

// Save writes snap atomically, replacing the session's previous record in
// any format.
func (s *DirStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	data, err := Marshal(snap, s.format, s.compression)
	if err != nil {
		return err
	}

	name := s.FileName(snap)
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return err
	}

	// Drop records of the same session written with other options.
	prefix := snap.ID() + sessionSep + snap.Session + "."
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list stats dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() != name && strings.HasPrefix(e.Name(), prefix) {
			if _, ok := parseFileName(e.Name()); ok {
				_ = os.Remove(filepath.Join(s.dir, e.Name()))
			}
		}
	}

	return nil
}

// Load accumulates every session record of (key, channel).
func (s *DirStore) Load(ctx context.Context, key, channel string) (*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	records, err := s.read(ctx, ID(key, channel)+sessionSep)
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
func (s *DirStore) List(ctx context.Context) ([]*Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	records, err := s.read(ctx, "")
	if err != nil {
		return nil, err
	}

	return merge(records), nil
}

// Close marks the store closed.
func (s *DirStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *DirStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return errs.ErrStoreClosed
	}

	return ctx.Err()
}

// fileKind is the encoding of a stats file derived from its name.
type fileKind struct {
	format      format.StatsFormat
	compression format.CompressionType
}

func parseFileName(name string) (fileKind, bool) {
	c, base := compress.ForFile(name)
	for _, f := range []format.StatsFormat{format.StatsYAML, format.StatsMsgpack} {
		if stem, ok := strings.CutSuffix(base, f.Extension()); ok && strings.Contains(stem, sessionSep) {
			return fileKind{format: f, compression: c}, true
		}
	}

	return fileKind{}, false
}

func (s *DirStore) read(ctx context.Context, prefix string) ([]*Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list stats dir: %w", err)
	}

	var out []*Snapshot
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		kind, ok := parseFileName(e.Name())
		if !ok {
			continue
		}

		snap, err := ReadFile(filepath.Join(s.dir, e.Name()), kind.format, kind.compression)
		if errors.Is(err, fs.ErrNotExist) {
			// Replaced by a concurrent Save.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}

	return out, nil
}

// ReadFile decodes one stats file.
func ReadFile(path string, f format.StatsFormat, c format.CompressionType) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	snap, err := Unmarshal(data, f, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return snap, nil
}

// ReadPath decodes a stats file, deriving its encoding from its name.
func ReadPath(path string) (*Snapshot, error) {
	c, base := compress.ForFile(path)
	f := format.StatsYAML
	if strings.HasSuffix(base, format.StatsMsgpack.Extension()) {
		f = format.StatsMsgpack
	}

	return ReadFile(path, f, c)
}

// WritePath encodes snap to path, deriving the encoding from its name.
func WritePath(path string, snap *Snapshot) error {
	c, base := compress.ForFile(path)
	f := format.StatsYAML
	if strings.HasSuffix(base, format.StatsMsgpack.Extension()) {
		f = format.StatsMsgpack
	}

	data, err := Marshal(snap, f, c)
	if err != nil {
		return err
	}

	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stats-*")
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	return nil
}
