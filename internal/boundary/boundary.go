// Package boundary locates the administrative boundary file used as the
// zonal-stats zones input.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// ErrNotFound is returned when the boundary dataset has no resource with the
// configured name.
var ErrNotFound = errors.New("boundary: resource not found")

// DatasetReader reads a dataset descriptor from the catalog.
type DatasetReader interface {
	ReadDataset(ctx context.Context, name string) (*domain.Dataset, error)
}

// Downloader fetches a remote artifact to a local path.
type Downloader interface {
	Retrieve(ctx context.Context, rawURL, dst string) error
}

// Source resolves boundary files into a local directory.
type Source struct {
	reader     DatasetReader
	downloader Downloader
	dir        string
	logger     *slog.Logger
}

// NewSource creates a Source that stores downloads under dir.
func NewSource(reader DatasetReader, downloader Downloader, dir string, logger *slog.Logger) *Source {
	return &Source{reader: reader, downloader: downloader, dir: dir, logger: logger}
}

// Resolve returns a local path to the named resource of the named dataset.
// A non-empty file already at that path is reused without contacting the
// catalog.
func (s *Source) Resolve(ctx context.Context, dataset, resource string) (string, error) {
	local := filepath.Join(s.dir, filepath.Base(resource))
	if info, err := os.Stat(local); err == nil && info.Size() > 0 {
		s.logger.Debug("boundaries cached", "path", local)
		return local, nil
	}

	ds, err := s.reader.ReadDataset(ctx, dataset)
	if err != nil {
		return "", fmt.Errorf("read boundary dataset %s: %w", dataset, err)
	}
	var url string
	for _, r := range ds.Resources {
		if r.Name == resource {
			url = r.URL
			break
		}
	}
	if url == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, resource, dataset)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	if err := s.downloader.Retrieve(ctx, url, local); err != nil {
		return "", fmt.Errorf("download boundaries %s: %w", resource, err)
	}
	s.logger.Info("boundaries downloaded", "dataset", dataset, "resource", resource, "path", local)
	return local, nil
}
