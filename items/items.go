// Package items collates per-contract item record files into ordered archive
// members. Each raw file is normalized (header line stripped, gzip
// compressed) and keyed by the contract id embedded in its name; the result
// is sorted ascending by id so archives are reproducible across runs.
package items

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/bulk"
	"github.com/OrbitalEnterprises/evekit-source-mdtools/internal/fname"
)

// ErrDuplicateContract is returned when two input files claim the same
// contract id. The archive index would be ambiguous, so the whole collation
// fails before any packing happens.
var ErrDuplicateContract = errors.New("items: duplicate contract id")

// itemPrefix is the file name prefix of raw contract item files.
const itemPrefix = "items_"

// collateConfig holds configuration for a collation.
type collateConfig struct {
	logger  *slog.Logger
	workers int
}

// CollateOption configures a collation.
type CollateOption func(*collateConfig)

// CollateWithLogger sets the logger used during collation.
func CollateWithLogger(l *slog.Logger) CollateOption {
	return func(cfg *collateConfig) {
		cfg.logger = l
	}
}

// CollateWithWorkers bounds the number of files normalized concurrently.
// Zero uses GOMAXPROCS.
func CollateWithWorkers(n int) CollateOption {
	return func(cfg *collateConfig) {
		cfg.workers = n
	}
}

// source is one discovered raw item file.
type source struct {
	id   int64
	path string
}

// MemberName returns the archive member name for a contract's items.
// The contract id sits in the second underscore field.
func MemberName(contractID int64, day time.Time) string {
	return fmt.Sprintf("items_%d_%s.csv.gz", contractID, day.Format("20060102"))
}

// Collate discovers raw item files under dir, normalizes each, and returns
// the members sorted ascending by contract id.
//
// Returns ErrDuplicateContract if two files resolve to the same id, and an
// empty slice (no error) when dir holds no item files.
func Collate(ctx context.Context, dir string, day time.Time, opts ...CollateOption) ([]bulk.Member, error) {
	cfg := collateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sources, err := discover(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		logger.Warn("no contract item files found", "dir", dir)
		return nil, nil
	}

	workers := cfg.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	members := make([]bulk.Member, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := normalize(src.path)
			if err != nil {
				return fmt.Errorf("items: contract %d: %w", src.id, err)
			}
			members[i] = bulk.Member{Name: MemberName(src.id, day), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("contract items collated", "count", len(members))
	return members, nil
}

// discover walks dir for raw item files and returns them sorted ascending
// by contract id, failing on duplicate ids.
func discover(dir string) ([]source, error) {
	var sources []source
	seen := make(map[int64]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), itemPrefix) {
			return nil
		}
		id, err := fname.ID(d.Name())
		if err != nil {
			return err
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: %d claimed by %s and %s", ErrDuplicateContract, id, prev, path)
		}
		seen[id] = path
		sources = append(sources, source{id: id, path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateContract) || errors.Is(err, fname.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("items: discover in %s: %w", dir, err)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].id < sources[j].id })
	return sources, nil
}

// normalize reads one raw item file, drops its header line, and gzips the
// remaining rows.
func normalize(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	body := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		body = raw[i+1:]
	} else {
		body = nil // header only, no rows
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
