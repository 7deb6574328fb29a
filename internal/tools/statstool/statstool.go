// Package statstool implements the deltapack-stats command: inspection and
// maintenance of persisted error statistics.
package statstool

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/arloliu/deltapack/errdist"
	"github.com/arloliu/deltapack/internal/config"
	"github.com/arloliu/deltapack/stats"
)

const usage = `usage: deltapack-stats <command> [flags] [files]

commands:
  inspect [-n N] file...         print a histogram summary of stats files
  merge -o out [-session s] in...  accumulate stats files into one
  trim [-o out] file             fold the histogram after its first empty index
  list [-dir d] [-backend b]     print the accumulated records of a stats store
`

// Run executes one command. args excludes the program name.
func Run(ctx context.Context, args []string, out, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(args) == 0 {
		fmt.Fprint(errOut, usage)
		return errors.New("missing command")
	}

	logger := slog.New(slog.NewTextHandler(errOut, nil))
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "inspect":
		return runInspect(rest, out, errOut)
	case "merge":
		return runMerge(rest, errOut, logger)
	case "trim":
		return runTrim(rest, errOut, logger)
	case "list":
		return runList(ctx, rest, out, errOut)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(errOut, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newFlagSet(name string, errOut io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)

	return fs
}

func runInspect(args []string, out, errOut io.Writer) error {
	fs := newFlagSet("inspect", errOut)
	top := fs.Int("n", 16, "histogram indices to print (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("inspect: no files")
	}

	for _, path := range fs.Args() {
		snap, err := stats.ReadPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", path)
		if err := describe(out, snap, *top); err != nil {
			return err
		}
	}

	return nil
}

// describe writes a readable summary of snap.
func describe(w io.Writer, snap *stats.Snapshot, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  id\t%s\n", snap.ID())
	if snap.Session != "" {
		fmt.Fprintf(tw, "  session\t%s\n", snap.Session)
	}
	total := snap.Total()
	fmt.Fprintf(tw, "  observations\t%d\n", total)
	fmt.Fprintf(tw, "  tracked\t%d\n", max(len(snap.Counts)-1, 0))
	zz := snap.ZeroAfterZero
	fmt.Fprintf(tw, "  zero after zero\t%d/%d\n", zz[1][1], zz[1][0]+zz[1][1])
	fmt.Fprintf(tw, "  zero after other\t%d/%d\n", zz[0][1], zz[0][0]+zz[0][1])
	if err := tw.Flush(); err != nil {
		return err
	}

	if total == 0 {
		return nil
	}

	n := len(snap.Counts)
	if top > 0 && top < n {
		n = top
	}
	fmt.Fprintln(w, "  index  error  count  share")
	for i, c := range snap.Counts[:n] {
		label := fmt.Sprintf("%d", errdist.Unzigzag(uint64(i))) //nolint: gosec
		if i == len(snap.Counts)-1 {
			label = "escape"
		}
		fmt.Fprintf(w, "  %5d  %5s  %5d  %5.1f%%\n", i, label, c, 100*float64(c)/float64(total))
	}
	if n < len(snap.Counts) {
		var rest uint64
		for _, c := range snap.Counts[n:] {
			rest += c
		}
		fmt.Fprintf(w, "  ... %d more indices, %d observations\n", len(snap.Counts)-n, rest)
	}

	if len(snap.Buckets) > 0 {
		parts := make([]string, 0, len(snap.Buckets))
		for bits, c := range snap.Buckets {
			if c != 0 {
				parts = append(parts, fmt.Sprintf("%d:%d", bits, c))
			}
		}
		fmt.Fprintf(w, "  bit lengths  %s\n", strings.Join(parts, " "))
	}

	return nil
}

func runMerge(args []string, errOut io.Writer, logger *slog.Logger) error {
	fs := newFlagSet("merge", errOut)
	output := fs.String("o", "", "output file (format from extension)")
	session := fs.String("session", "", "session of the merged record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *output == "" {
		return errors.New("merge: -o is required")
	}
	if fs.NArg() == 0 {
		return errors.New("merge: no input files")
	}

	var merged *stats.Snapshot
	for _, path := range fs.Args() {
		snap, err := stats.ReadPath(path)
		if err != nil {
			return err
		}
		if merged == nil {
			merged = &stats.Snapshot{Key: snap.Key, Channel: snap.Channel, Session: *session}
		} else if snap.ID() != merged.ID() {
			return fmt.Errorf("merge: %s holds %q, expected %q", path, snap.ID(), merged.ID())
		}
		merged.Accumulate(snap)
	}

	if err := merged.Validate(); err != nil {
		return err
	}
	if err := stats.WritePath(*output, merged); err != nil {
		return err
	}
	logger.Info("merged statistics", "id", merged.ID(), "inputs", fs.NArg(), "observations", merged.Total(), "output", *output)

	return nil
}

func runTrim(args []string, errOut io.Writer, logger *slog.Logger) error {
	fs := newFlagSet("trim", errOut)
	output := fs.String("o", "", "output file (default: rewrite the input)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("trim: expected one file")
	}

	path := fs.Arg(0)
	snap, err := stats.ReadPath(path)
	if err != nil {
		return err
	}

	before := len(snap.Counts)
	dist := errdist.FromCounts(snap.Counts)
	dist.TrimToFirstZero()
	snap.Counts = dist.Counts()

	dst := *output
	if dst == "" {
		dst = path
	}
	if err := stats.WritePath(dst, snap); err != nil {
		return err
	}
	logger.Info("trimmed statistics", "id", snap.ID(), "indices_before", before, "indices_after", len(snap.Counts), "output", dst)

	return nil
}

func runList(ctx context.Context, args []string, out, errOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := newFlagSet("list", errOut)
	fs.StringVar(&cfg.StatsDir, "dir", cfg.StatsDir, "stats directory (default: DELTAPACK_STATS_DIR)")
	fs.StringVar(&cfg.StatsBackend, "backend", cfg.StatsBackend, "stats backend, dir or badger (default: DELTAPACK_STATS_BACKEND)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOBSERVATIONS\tTRACKED")
	for _, snap := range snaps {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", snap.ID(), snap.Total(), max(len(snap.Counts)-1, 0))
	}

	return tw.Flush()
}
