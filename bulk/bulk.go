// Package bulk builds and reads indexed bulk archives: a bulk file is the
// raw concatenation of named members with no separators, and a companion
// plain-text index records each member's name and starting byte offset.
// Member lengths are implicit (next offset minus current, end of file for
// the last member), so any member can be recovered with a single range read.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"
)

// ErrEmptyName is returned when a member has no name.
var ErrEmptyName = errors.New("bulk: member name is empty")

// ErrEmptyMember is returned when a member has no data. A zero-length
// member would share its offset with the next index entry, producing an
// archive the index reader rejects.
var ErrEmptyMember = errors.New("bulk: member data is empty")

// Member is one named blob to pack.
type Member struct {
	Name string
	Data []byte
}

// Result describes a completed build.
type Result struct {
	// Members is the number of members packed.
	Members int
	// Size is the total byte length of the bulk stream.
	Size int64
	// Digest is the canonical digest of the bulk stream.
	Digest digest.Digest
}

// buildConfig holds configuration for a build.
type buildConfig struct {
	logger *slog.Logger
}

// BuildOption configures a build.
type BuildOption func(*buildConfig)

// BuildWithLogger sets the logger used during the build.
func BuildWithLogger(l *slog.Logger) BuildOption {
	return func(cfg *buildConfig) {
		cfg.logger = l
	}
}

// builder holds state for one build.
type builder struct {
	cfg buildConfig
}

// log returns the logger, falling back to a discard logger if nil.
func (b *builder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.cfg.logger
}

// Build packs members into bulkW in the given order and writes one index
// line per member to indexW.
//
// Build is deterministic: the output depends only on member order and
// content. It does not re-sort; the order of members is the caller's
// contract with every future reader of the archive.
func Build(ctx context.Context, members []Member, bulkW, indexW io.Writer, opts ...BuildOption) (Result, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &builder{cfg: cfg}

	digester := digest.Canonical.Digester()
	data := io.MultiWriter(bulkW, digester.Hash())

	var offset int64
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if m.Name == "" {
			return Result{}, ErrEmptyName
		}
		if len(m.Data) == 0 {
			return Result{}, fmt.Errorf("%w: %s", ErrEmptyMember, m.Name)
		}
		if _, err := fmt.Fprintf(indexW, "%s %d\n", m.Name, offset); err != nil {
			return Result{}, fmt.Errorf("bulk: write index entry %s: %w", m.Name, err)
		}
		n, err := data.Write(m.Data)
		if err != nil {
			return Result{}, fmt.Errorf("bulk: write member %s: %w", m.Name, err)
		}
		offset += int64(n)
	}

	res := Result{Members: len(members), Size: offset, Digest: digester.Digest()}
	b.log().Info("bulk archive built", "members", res.Members, "size", res.Size, "digest", res.Digest)
	return res, nil
}
