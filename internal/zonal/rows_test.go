package zonal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRows_SuffixedStatColumn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	dst := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(src, []byte("iso_3,NAME,band_1_mean\nKEN,Kenya,31.5\nUGA,Uganda,-9999.0\n"), 0o644))

	key := domain.ScenarioKey{Scenario: "2030_SSP245", Product: "avg_Tmax", Year: 2030, Month: 7}
	kept, dropped, err := WriteRows(src, dst, key, domain.StatMean)
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	assert.Equal(t, 1, dropped)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "location_code,year,month,product,mean\nKEN,2030,7,avg_Tmax,31.5\n", string(data))
}

func TestWriteRows_MissingColumns(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(src, []byte("NAME,count\nKenya,3\n"), 0o644))

	_, _, err := WriteRows(src, filepath.Join(dir, "rows.csv"), domain.ScenarioKey{}, domain.StatCount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISO_3")
}

func TestWriteRows_EmptyOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	_, _, err := WriteRows(src, filepath.Join(dir, "rows.csv"), domain.ScenarioKey{}, domain.StatCount)
	require.Error(t, err)
}
