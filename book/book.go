// Package book assembles per-region contract listing books. A book places a
// region's irregularly captured snapshots onto a fixed time grid and
// serializes one block per grid slot, so readers can step through a day at a
// constant cadence without knowing the capture schedule.
package book

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/bulk"
	"github.com/OrbitalEnterprises/evekit-source-mdtools/internal/fname"
	"github.com/OrbitalEnterprises/evekit-source-mdtools/interval"
)

// ErrNoSnapshots is returned when a region has no snapshot files to assemble.
var ErrNoSnapshots = errors.New("book: region has no snapshots")

// snapshotPrefix is the file name prefix of raw region snapshot files.
const snapshotPrefix = "contracts_"

// Region is one region's snapshot set for a day.
type Region struct {
	// ID is the region identifier, parsed from the snapshot file names.
	ID int64
	// Snapshots is the region's capture sequence, ascending by capture time.
	Snapshots []interval.Snapshot
}

// DiscoverRegions scans dir recursively for raw snapshot files
// (contracts_<regionID>_<captureMillis>.csv) and groups them by region.
// Regions are returned ascending by id, each with its snapshots ascending
// by capture time.
func DiscoverRegions(dir string) ([]Region, error) {
	byID := make(map[int64][]interval.Snapshot)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), snapshotPrefix) {
			return nil
		}
		id, err := fname.ID(d.Name())
		if err != nil {
			return err
		}
		captured, err := fname.Captured(d.Name())
		if err != nil {
			return err
		}
		byID[id] = append(byID[id], interval.Snapshot{Path: path, Captured: captured})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("book: discover regions in %s: %w", dir, err)
	}

	regions := make([]Region, 0, len(byID))
	for id, snaps := range byID {
		sort.Slice(snaps, func(i, j int) bool {
			return snaps[i].Captured.Before(snaps[j].Captured)
		})
		regions = append(regions, Region{ID: id, Snapshots: snaps})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })
	return regions, nil
}

// MemberName returns the archive member name for a region's book.
// The region id sits in the second underscore field, where the established
// readers of these archives expect to find it.
func MemberName(regionID int64, day time.Time, step time.Duration) string {
	return fmt.Sprintf("contracts_%d_%s_%d.book.gz",
		regionID, day.Format("20060102"), int(step.Minutes()))
}

// Assemble sequences one region's snapshots across [start, end) at the given
// step and returns the gzip-compressed book member.
//
// The uncompressed book is line-oriented text: the slot count, then per slot
// the target time in milliseconds since epoch, the row count, and the rows.
// Missing slots carry a zero row count and no rows. Each snapshot file's
// header line is dropped; only record rows enter the book.
func Assemble(ctx context.Context, region Region, start, end time.Time, step time.Duration) (bulk.Member, error) {
	if len(region.Snapshots) == 0 {
		return bulk.Member{}, fmt.Errorf("%w: region %d", ErrNoSnapshots, region.ID)
	}

	assignments, err := interval.Sequence(start, end, step, region.Snapshots)
	if err != nil {
		return bulk.Member{}, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	w := bufio.NewWriter(zw)

	fmt.Fprintf(w, "%d\n", len(assignments))
	rowCache := make(map[string][]string)
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return bulk.Member{}, err
		}
		var rows []string
		if !a.Missing() {
			rows, err = cachedRows(rowCache, a.Source.Path)
			if err != nil {
				return bulk.Member{}, fmt.Errorf("book: region %d: %w", region.ID, err)
			}
		}
		fmt.Fprintf(w, "%d\n", a.Slot.Target.UnixMilli())
		fmt.Fprintf(w, "%d\n", len(rows))
		for _, row := range rows {
			fmt.Fprintln(w, row)
		}
	}
	if err := w.Flush(); err != nil {
		return bulk.Member{}, fmt.Errorf("book: region %d: %w", region.ID, err)
	}
	if err := zw.Close(); err != nil {
		return bulk.Member{}, fmt.Errorf("book: region %d: %w", region.ID, err)
	}

	return bulk.Member{
		Name: MemberName(region.ID, start, step),
		Data: buf.Bytes(),
	}, nil
}

// cachedRows reads a snapshot file's record rows, dropping the header line.
// Carry-forward assigns the same file to consecutive slots, so rows are
// cached by path for the duration of one assembly.
func cachedRows(cache map[string][]string, path string) ([]string, error) {
	if rows, ok := cache[path]; ok {
		return rows, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	rows := lines[1:] // drop header
	cache[path] = rows
	return rows, nil
}
