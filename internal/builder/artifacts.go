package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

var ErrMissingArtifact = errors.New("required artifact is missing")

func (c FileCopy) target() string {
	if c.To != "" {
		return c.To
	}
	return filepath.Base(c.From)
}

// CollectArtifacts promotes finished artifacts into the output directory and
// returns the output-relative names it wrote. Optional artifacts absent from
// staging are skipped, relocations absent from the project are skipped,
// absent required files fail the collection.
func CollectArtifacts(ctx context.Context, cfg RunConfig, a ArtifactsSection) ([]string, error) {
	temp := cfg.resolve(cfg.Paths.Temp)
	output := cfg.resolve(cfg.Paths.Output)

	copied := make([]bool, len(a.Optional))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, name := range a.Optional {
		eg.Go(func() error {
			src := filepath.Join(temp, name)
			if !fileExists(src) {
				return nil
			}
			if err := copyFile(src, filepath.Join(output, name)); err != nil {
				return fmt.Errorf("copy %s: %w", name, err)
			}
			copied[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var written []string
	for i, name := range a.Optional {
		if copied[i] {
			written = append(written, name)
		}
	}

	for _, r := range a.Relocate {
		src := cfg.resolve(r.From)
		if !fileExists(src) {
			continue
		}
		if err := moveFile(src, filepath.Join(output, r.target())); err != nil {
			return written, fmt.Errorf("relocate %s: %w", r.From, err)
		}
		written = append(written, r.target())
	}

	for _, r := range a.Required {
		src := cfg.resolve(r.From)
		if !fileExists(src) {
			return written, fmt.Errorf("%w: %s", ErrMissingArtifact, r.From)
		}
		if err := copyFile(src, filepath.Join(output, r.target())); err != nil {
			return written, fmt.Errorf("copy %s: %w", r.From, err)
		}
		written = append(written, r.target())
	}

	return written, nil
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Mode().IsRegular()
}

// copyFile overwrites dst with the contents of src
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	stat, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stat.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// moveFile replaces dst with src, copying when a rename is not possible
func moveFile(src, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
