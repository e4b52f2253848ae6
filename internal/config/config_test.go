package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "config/project_configuration.yaml", cfg.ProjectConfigPath)
	assert.Equal(t, "saved_data", cfg.SavedDir)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://data.humdata.org", cfg.HDXSiteURL)
	assert.Equal(t, 20*time.Second, cfg.FetchConnectTimeout)
	assert.Equal(t, 300*time.Second, cfg.FetchTotalTimeout)
	assert.InEpsilon(t, 2.0, cfg.FetchRatePerSecond, 0.0001)
	assert.Equal(t, 2, cfg.FetchMaxConnsPerHost)
	assert.Equal(t, 4, cfg.AggregateMaxProcs)
	assert.Equal(t, "rsync", cfg.RsyncPath)
	assert.Equal(t, "gdal", cfg.GDALPath)
	assert.Equal(t, "zip", cfg.ZipPath)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/chc/project.yaml")
	t.Setenv("TEMP_DIR", "/var/tmp/chc")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("HDX_API_KEY", "secret")
	t.Setenv("FETCH_CONNECT_TIMEOUT", "5s")
	t.Setenv("FETCH_TOTAL_TIMEOUT", "1m")
	t.Setenv("FETCH_RATE_PER_SECOND", "0.5")
	t.Setenv("FETCH_MAX_CONNS_PER_HOST", "4")
	t.Setenv("AGGREGATE_MAX_PROCS", "8")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/chc/project.yaml", cfg.ProjectConfigPath)
	assert.Equal(t, "/var/tmp/chc", cfg.TempDir)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "secret", cfg.HDXAPIKey)
	assert.Equal(t, 5*time.Second, cfg.FetchConnectTimeout)
	assert.Equal(t, time.Minute, cfg.FetchTotalTimeout)
	assert.InEpsilon(t, 0.5, cfg.FetchRatePerSecond, 0.0001)
	assert.Equal(t, 4, cfg.FetchMaxConnsPerHost)
	assert.Equal(t, 8, cfg.AggregateMaxProcs)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "chc-resources-published", cfg.KafkaTopic)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidConnectTimeout(t *testing.T) {
	t.Setenv("FETCH_CONNECT_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_CONNECT_TIMEOUT")
}

func TestLoad_TotalShorterThanConnect(t *testing.T) {
	t.Setenv("FETCH_CONNECT_TIMEOUT", "30s")
	t.Setenv("FETCH_TOTAL_TIMEOUT", "10s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TOTAL_TIMEOUT")
}

func TestLoad_InvalidRate(t *testing.T) {
	t.Setenv("FETCH_RATE_PER_SECOND", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_RATE_PER_SECOND")
}

func TestLoad_InvalidMaxProcs(t *testing.T) {
	t.Setenv("AGGREGATE_MAX_PROCS", "none")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGGREGATE_MAX_PROCS")
}

const projectYAML = `
base_url: "https://x"
base_file: "Daily_Tmax_{product}_{month}"
products:
  - cnt_Tmaxgt30C
scenarios:
  - 2030_SSP245
start_year: 2030
end_year: 2030
`

func TestParseProject_Defaults(t *testing.T) {
	p, err := ParseProject([]byte(projectYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://x", p.BaseURL)
	assert.Equal(t, domain.FileTemplate("Daily_Tmax_{product}_{month}"), p.BaseFile)
	assert.Equal(t, []string{"cnt_Tmaxgt30C"}, p.Products)
	assert.Equal(t, []string{"2030_SSP245"}, p.Scenarios)
	assert.Equal(t, ModeGeoTIFF, p.Mode)
	assert.Equal(t, domain.StatCount, p.Stat)
	assert.Equal(t, []int{2030}, p.Years())
}

func TestParseProject_StatsModeNeedsBoundaries(t *testing.T) {
	_, err := ParseProject([]byte(projectYAML + "mode: stats\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundaries")

	p, err := ParseProject([]byte(projectYAML + "mode: stats\nstat: mean\nboundaries:\n  dataset: cod-ab-global\n  resource: admin0.gpkg\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeStats, p.Mode)
	assert.Equal(t, domain.StatMean, p.Stat)
	assert.Equal(t, "admin0.gpkg", p.Boundaries.Resource)
}

func TestParseProject_CollectsErrors(t *testing.T) {
	_, err := ParseProject([]byte("base_file: Daily_Tmax\nstart_year: 2050\nend_year: 2030\nscenarios: [bad]\nstat: max\n"))
	require.Error(t, err)
	for _, want := range []string{"base_url", "{product}", "products", "year range", "bad", "max"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadDatasetMetadata_Apply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hdx_dataset_static.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notes: Static notes.
license_id: cc-by
methodology: Other
tags:
  - name: climate-weather
    vocabulary_id: b891512e-9516-4bf5-962a-7a289772a2a1
groups:
  - world
`), 0o644))

	m, err := LoadDatasetMetadata(path)
	require.NoError(t, err)

	d := &domain.Dataset{Name: "chc_ucsb_tmax_2030_ssp245", Tags: []domain.Tag{{Name: "climate-weather"}}}
	m.Apply(d)

	assert.Equal(t, "Static notes.", d.Notes)
	assert.Len(t, d.Tags, 1)
	assert.Equal(t, []string{"world"}, d.Groups)
	assert.Equal(t, "cc-by", d.Extras["license_id"])
	assert.Equal(t, "Other", d.Extras["methodology"])
}

func TestShippedConfigFiles(t *testing.T) {
	p, err := LoadProject(filepath.Join("..", "..", "config", "project_configuration.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ModeGeoTIFF, p.Mode)
	assert.Equal(t, FetchSync, p.Fetch)
	assert.Equal(t, []int{2030}, p.Years())
	assert.Len(t, p.Scenarios, 4)

	m, err := LoadDatasetMetadata(filepath.Join("..", "..", "config", "hdx_dataset_static.yaml"))
	require.NoError(t, err)
	assert.Contains(t, m.Notes, "{pathway} {period}")
	assert.Equal(t, []string{"world"}, m.Groups)
	assert.Equal(t, "cc-by", m.Extras["license_id"])
	assert.NotContains(t, m.Extras, "notes")
}
