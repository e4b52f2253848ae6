// Package rastersync mirrors remote raster directories into local bucket
// directories with rsync, reporting the files it transferred.
package rastersync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/couchcryptid/chc-cmip6-etl/internal/command"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
)

// ErrSyncFailed is returned when rsync exits non-zero. The bucket being
// synced should be treated as failed; the whole call may be retried.
var ErrSyncFailed = errors.New("rastersync: sync failed")

// RasterMarker is the substring that identifies a transferred raster line.
const RasterMarker = ".tif"

// Syncer runs one rsync child per Sync call. It holds no per-call state, so
// concurrent calls into distinct directories are safe.
type Syncer struct {
	starter command.Starter
	binary  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Syncer invoking the rsync binary at path binary.
func New(starter command.Starter, binary string, logger *slog.Logger, metrics *observability.Metrics) *Syncer {
	if binary == "" {
		binary = "rsync"
	}
	return &Syncer{starter: starter, binary: binary, logger: logger, metrics: metrics}
}

// Args builds the rsync argument list. Only basenames matching include are
// transferred; trailing slashes make rsync copy directory contents.
func Args(source, localDir, include string) []string {
	return []string{
		"-avv",
		"--include=" + include,
		"--exclude=*",
		strings.TrimSuffix(source, "/") + "/",
		strings.TrimSuffix(localDir, "/") + "/",
	}
}

// Sync mirrors source into localDir and returns the transferred filenames in
// the order rsync reported them.
func (s *Syncer) Sync(ctx context.Context, source, localDir, include string) ([]string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sync dir: %w", err)
	}

	start := domain.Now()
	log := s.logger.With("source", source, "dir", localDir, "include", include)

	proc, err := s.starter.Start(ctx, command.Spec{Name: s.binary, Args: Args(source, localDir, include)})
	if err != nil {
		s.metrics.Syncs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(proc.Stderr(), func(line string) {
			log.Error("rsync", "line", line)
		})
	}()

	files := ParseTransferred(proc.Stdout(), func(line string) {
		log.Info("rsync", "line", line)
	})
	wg.Wait()

	if err := proc.Wait(); err != nil {
		s.metrics.Syncs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrSyncFailed, source, err)
	}

	files = present(localDir, files, log)
	s.metrics.Syncs.WithLabelValues("success").Inc()
	s.metrics.SyncedFiles.Add(float64(len(files)))
	log.Info("sync complete", "files", len(files), "duration", domain.Since(start))
	return files, nil
}

// present keeps the names that exist as regular files in dir.
func present(dir string, names []string, log *slog.Logger) []string {
	kept := names[:0]
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			log.Debug("ignoring reported name", "name", name)
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

// ParseTransferred reads rsync's verbose output line by line and collects the
// first token of every line containing RasterMarker. Lines tagged with a
// bracketed role such as "[sender]" are diagnostics, not transfers. Each
// trimmed line is passed to onLine before classification; onLine may be nil.
func ParseTransferred(r io.Reader, onLine func(string)) []string {
	var files []string
	scanLines(r, func(line string) {
		if onLine != nil {
			onLine(line)
		}
		if !strings.Contains(line, RasterMarker) {
			return
		}
		if fields := strings.Fields(line); len(fields) > 0 && !strings.HasPrefix(fields[0], "[") {
			files = append(files, fields[0])
		}
	})
	return files
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	// Drain whatever the scanner refused (over-long line) so the child never
	// blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
