package boundary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	ds    *domain.Dataset
	err   error
	calls int
}

func (f *fakeReader) ReadDataset(_ context.Context, _ string) (*domain.Dataset, error) {
	f.calls++
	return f.ds, f.err
}

type fakeDownloader struct {
	urls []string
}

func (f *fakeDownloader) Retrieve(_ context.Context, rawURL, dst string) error {
	f.urls = append(f.urls, rawURL)
	return os.WriteFile(dst, []byte("shapes"), 0o644)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func boundaryDataset() *domain.Dataset {
	return &domain.Dataset{
		Name: "unmap-international-boundaries-geojson",
		Resources: []domain.Resource{
			{Name: "admin1.shp.zip", URL: "https://data.example.org/admin1.shp.zip"},
			{Name: "admin0.shp.zip", URL: "https://data.example.org/admin0.shp.zip"},
		},
	}
}

func TestResolve_DownloadsNamedResource(t *testing.T) {
	dir := t.TempDir()
	reader := &fakeReader{ds: boundaryDataset()}
	dl := &fakeDownloader{}
	src := NewSource(reader, dl, dir, discard)

	path, err := src.Resolve(context.Background(), "unmap-international-boundaries-geojson", "admin0.shp.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "admin0.shp.zip"), path)
	assert.Equal(t, []string{"https://data.example.org/admin0.shp.zip"}, dl.urls)
}

func TestResolve_ReusesCachedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin0.shp.zip"), []byte("cached"), 0o644))
	reader := &fakeReader{ds: boundaryDataset()}
	dl := &fakeDownloader{}

	path, err := NewSource(reader, dl, dir, discard).Resolve(context.Background(), "x", "admin0.shp.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "admin0.shp.zip"), path)
	assert.Zero(t, reader.calls)
	assert.Empty(t, dl.urls)
}

func TestResolve_ResourceMissing(t *testing.T) {
	src := NewSource(&fakeReader{ds: boundaryDataset()}, &fakeDownloader{}, t.TempDir(), discard)
	_, err := src.Resolve(context.Background(), "x", "admin2.shp.zip")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_CatalogError(t *testing.T) {
	boom := errors.New("catalog down")
	src := NewSource(&fakeReader{err: boom}, &fakeDownloader{}, t.TempDir(), discard)
	_, err := src.Resolve(context.Background(), "x", "admin0.shp.zip")
	require.ErrorIs(t, err, boom)
}
