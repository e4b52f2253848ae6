// Package packaging bundles a directory of rasters into one deterministic
// ZIP archive.
//
// The archive is produced by the zip tool reading a sorted file list on
// stdin, with extra attributes (-X) and directory entries (-D) disabled and
// every member's mtime and mode pinned, so packaging the same inputs twice
// yields byte-identical archives.
package packaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/chc-cmip6-etl/internal/command"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
)

// ErrArchive is returned when no usable archive was produced.
var ErrArchive = errors.New("packaging: archive failed")

// epoch is the mtime given to every archived file. ZIP cannot represent
// times before 1980; a day past that boundary survives any zone offset.
var epoch = time.Date(1980, time.January, 2, 0, 0, 0, 0, time.UTC)

// Packager builds archives with the zip tool.
type Packager struct {
	runner  command.Runner
	binary  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Packager.
func New(runner command.Runner, binary string, logger *slog.Logger, metrics *observability.Metrics) *Packager {
	if binary == "" {
		binary = "zip"
	}
	return &Packager{runner: runner, binary: binary, logger: logger, metrics: metrics}
}

// Args builds the zip argument list for an archive written to archivePath.
func Args(archivePath string) []string {
	return []string{"-q", "-X", "-D", archivePath, "-@"}
}

// Package archives every regular file under sourceDir into archivePath,
// replacing any previous archive. Member paths are relative to sourceDir.
func (p *Packager) Package(ctx context.Context, sourceDir, archivePath string) (err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.metrics.Archives.WithLabelValues(outcome).Inc()
	}()

	start := domain.Now()
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	files, err := Normalize(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s: no files", ErrArchive, sourceDir)
	}

	if err := os.MkdirAll(filepath.Dir(absArchive), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	// zip appends to an existing archive.
	if err := os.Remove(absArchive); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}

	out, err := p.runner.Run(ctx, command.Spec{
		Name:  p.binary,
		Args:  Args(absArchive),
		Dir:   sourceDir,
		Env:   []string{"TZ=UTC"},
		Stdin: strings.NewReader(strings.Join(files, "\n") + "\n"),
	})
	if err != nil {
		p.logger.Error("command failed", "archive", filepath.Base(absArchive), "stderr", string(bytes.TrimSpace(out.Stderr)))
		return fmt.Errorf("%w: %s: %v", ErrArchive, filepath.Base(absArchive), err)
	}

	info, err := os.Stat(absArchive)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s: missing or empty", ErrArchive, filepath.Base(absArchive))
	}
	p.logger.Info("archive created", "archive", filepath.Base(absArchive), "files", len(files), "bytes", info.Size(), "duration", domain.Since(start))
	return nil
}

// Normalize pins the mtime and mode of every regular file under dir and
// returns their slash-separated relative paths in sorted order.
func Normalize(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := os.Chmod(path, 0o644); err != nil {
			return err
		}
		if err := os.Chtimes(path, epoch, epoch); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
