package compile

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/OrbitalEnterprises/evekit-source-mdtools/bulk"
)

// writeTarball stages a tarball holding each member as an individual file,
// kept alongside the bulk form for direct access. Member modification times
// are pinned to the compiled day so repeated runs produce identical bytes.
func (c *compiler) writeTarball(members []bulk.Member, name string) error {
	f, err := os.Create(filepath.Join(c.staging, name))
	if err != nil {
		return fmt.Errorf("compile: stage %s: %w", name, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.Name,
			Mode:    0o644,
			Size:    int64(len(m.Data)),
			ModTime: c.day,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("compile: tar %s: %w", m.Name, err)
		}
		if _, err := tw.Write(m.Data); err != nil {
			return fmt.Errorf("compile: tar %s: %w", m.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("compile: close %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compile: close %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("compile: close %s: %w", name, err)
	}
	c.log().Info("tarball staged", "name", name, "members", len(members))
	return nil
}

// publish moves the staged files into the output directory in two phases:
// every file is first copied next to its final path under a temporary name,
// and only when all copies succeeded are they renamed into place. A failure
// in either phase removes whatever this run already placed in the output
// directory, so readers never observe a partial bulk/index pair.
func (c *compiler) publish(names []string) error {
	if err := os.MkdirAll(c.cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("compile: create output dir: %w", err)
	}

	tmps := make([]string, 0, len(names))
	removeAll := func(paths []string) {
		for _, p := range paths {
			os.Remove(p)
		}
	}

	for _, name := range names {
		tmp, err := copyToTemp(filepath.Join(c.staging, name), c.cfg.OutputDir)
		if err != nil {
			removeAll(tmps)
			return fmt.Errorf("compile: publish %s: %w", name, err)
		}
		tmps = append(tmps, tmp)
	}

	renamed := make([]string, 0, len(names))
	for i, name := range names {
		dst := filepath.Join(c.cfg.OutputDir, name)
		if err := os.Rename(tmps[i], dst); err != nil {
			removeAll(renamed)
			removeAll(tmps[i:])
			return fmt.Errorf("compile: publish %s: %w", name, err)
		}
		renamed = append(renamed, dst)
	}

	c.log().Info("day published", "dir", c.cfg.OutputDir, "files", len(names))
	return nil
}

// copyToTemp copies src into dir under a temporary name and returns the
// temporary path. Staging may sit on a different filesystem, so a direct
// rename out of it is not assumed to work.
func copyToTemp(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, ".mdcompile-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}
