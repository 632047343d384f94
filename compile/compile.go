// Package compile assembles one day's market data archives. It runs the
// per-region book assembly and the contract item collation, packs both into
// bulk+index pairs with companion tarballs, and publishes the results
// atomically: everything is staged in a temporary directory and moved to the
// output directory only when the whole day succeeded.
package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/book"
	"github.com/OrbitalEnterprises/evekit-source-mdtools/bulk"
	"github.com/OrbitalEnterprises/evekit-source-mdtools/items"
)

// ErrConfig is returned when the run configuration is unusable. Nothing is
// written in that case.
var ErrConfig = errors.New("compile: invalid configuration")

// DefaultStep is the grid cadence used when Config.Step is zero.
const DefaultStep = 30 * time.Minute

// Archive base names. The day and step are appended to form output file
// names, e.g. contracts_20160831_30.bulk.
const (
	snapshotArchive = "contracts"
	itemArchive     = "contract_items"
)

// Config describes one day's compilation.
type Config struct {
	// Date is the UTC calendar day to compile.
	Date time.Time
	// SnapshotDir is the tree holding raw per-region snapshot files.
	SnapshotDir string
	// ItemsDir is the tree holding raw per-contract item files.
	ItemsDir string
	// OutputDir receives the day's archives. Created if absent.
	OutputDir string
	// Step is the grid cadence. Zero means DefaultStep. Must evenly divide
	// the day.
	Step time.Duration
	// Workers bounds per-region and per-file parallelism. Zero uses
	// GOMAXPROCS.
	Workers int
	// Logger receives progress and skip reports. Nil discards.
	Logger *slog.Logger
}

// compiler holds state for one run.
type compiler struct {
	cfg     Config
	day     time.Time
	step    time.Duration
	staging string
}

// log returns the logger, falling back to a discard logger if nil.
func (c *compiler) log() *slog.Logger {
	if c.cfg.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.cfg.Logger
}

// Run compiles one day of archives per cfg.
//
// On any failure the output directory is untouched; the staging area is
// removed regardless of outcome.
func Run(ctx context.Context, cfg Config) (err error) {
	c := &compiler{cfg: cfg}
	if err := c.validate(); err != nil {
		return err
	}

	c.staging, err = os.MkdirTemp("", "mdcompile-")
	if err != nil {
		return fmt.Errorf("compile: create staging dir: %w", err)
	}
	defer os.RemoveAll(c.staging)

	c.log().Info("compiling day", "date", c.day.Format("20060102"),
		"step", c.step, "staging", c.staging)

	staged, err := c.buildBooks(ctx)
	if err != nil {
		return err
	}
	itemFiles, err := c.buildItems(ctx)
	if err != nil {
		return err
	}
	staged = append(staged, itemFiles...)

	return c.publish(staged)
}

// validate checks the configuration and normalizes the day and step.
func (c *compiler) validate() error {
	if c.cfg.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrConfig)
	}
	c.day = c.cfg.Date.UTC().Truncate(24 * time.Hour)
	c.step = c.cfg.Step
	if c.step == 0 {
		c.step = DefaultStep
	}
	if c.step <= 0 || (24*time.Hour)%c.step != 0 {
		return fmt.Errorf("%w: step %v does not evenly divide the day", ErrConfig, c.step)
	}
	for _, dir := range []string{c.cfg.SnapshotDir, c.cfg.ItemsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%w: source dir %s: %v", ErrConfig, dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: source %s is not a directory", ErrConfig, dir)
		}
	}
	if c.cfg.OutputDir == "" {
		return fmt.Errorf("%w: output dir is required", ErrConfig)
	}
	return nil
}

// workers returns the configured parallelism bound.
func (c *compiler) workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// buildBooks assembles every region's book and packs the snapshot archive
// set in staging. Returns the staged file names.
func (c *compiler) buildBooks(ctx context.Context) ([]string, error) {
	regions, err := book.DiscoverRegions(c.cfg.SnapshotDir)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		c.log().Warn("no region snapshots found", "dir", c.cfg.SnapshotDir)
	}

	start := c.day
	end := c.day.Add(24 * time.Hour)

	// Assemble regions in parallel; the slice keeps discovery order
	// (ascending region id), so packing stays deterministic.
	members := make([]bulk.Member, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			m, err := book.Assemble(gctx, region, start, end, c.step)
			if err != nil {
				return err
			}
			members[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.log().Info("region books assembled", "regions", len(members))

	base := fmt.Sprintf("%s_%s_%d", snapshotArchive, c.day.Format("20060102"), int(c.step.Minutes()))
	bulkName := base + ".bulk"
	indexName := base + ".index"
	tarName := base + ".tgz"

	if err := c.writeArchive(ctx, members, bulkName, indexName, false); err != nil {
		return nil, err
	}
	if err := c.writeTarball(members, tarName); err != nil {
		return nil, err
	}
	return []string{bulkName, indexName, tarName}, nil
}

// buildItems collates contract item files and packs the item archive set in
// staging. Returns the staged file names.
func (c *compiler) buildItems(ctx context.Context) ([]string, error) {
	members, err := items.Collate(ctx, c.cfg.ItemsDir, c.day,
		items.CollateWithLogger(c.cfg.Logger),
		items.CollateWithWorkers(c.workers()))
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("%s_%s", itemArchive, c.day.Format("20060102"))
	bulkName := base + ".bulk"
	indexName := base + ".index.gz"
	tarName := fmt.Sprintf("%s_%d.tgz", base, int(c.step.Minutes()))

	if err := c.writeArchive(ctx, members, bulkName, indexName, true); err != nil {
		return nil, err
	}
	if err := c.writeTarball(members, tarName); err != nil {
		return nil, err
	}
	return []string{bulkName, indexName, tarName}, nil
}

// writeArchive packs members into a staged bulk+index pair. The index is
// gzip-compressed when gzipIndex is set.
func (c *compiler) writeArchive(ctx context.Context, members []bulk.Member, bulkName, indexName string, gzipIndex bool) error {
	bulkF, err := os.Create(filepath.Join(c.staging, bulkName))
	if err != nil {
		return fmt.Errorf("compile: stage %s: %w", bulkName, err)
	}
	defer bulkF.Close()
	indexF, err := os.Create(filepath.Join(c.staging, indexName))
	if err != nil {
		return fmt.Errorf("compile: stage %s: %w", indexName, err)
	}
	defer indexF.Close()

	indexW := io.Writer(indexF)
	var zw *gzip.Writer
	if gzipIndex {
		zw = gzip.NewWriter(indexF)
		indexW = zw
	}

	res, err := bulk.Build(ctx, members, bulkF, indexW, bulk.BuildWithLogger(c.cfg.Logger))
	if err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compile: close %s: %w", indexName, err)
		}
	}
	if err := indexF.Close(); err != nil {
		return fmt.Errorf("compile: close %s: %w", indexName, err)
	}
	if err := bulkF.Close(); err != nil {
		return fmt.Errorf("compile: close %s: %w", bulkName, err)
	}

	c.log().Info("archive staged", "bulk", bulkName, "index", indexName,
		"members", res.Members, "size", res.Size, "digest", res.Digest)
	return nil
}
