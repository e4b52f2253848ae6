package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all process settings, populated from environment variables.
type Config struct {
	ProjectConfigPath string
	DatasetConfigPath string
	TempDir           string
	SavedDir          string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration

	// Catalog.
	HDXSiteURL string
	HDXAPIKey  string
	UserAgent  string

	// Remote raster fetching.
	FetchConnectTimeout  time.Duration
	FetchTotalTimeout    time.Duration
	FetchRatePerSecond   float64
	FetchMaxConnsPerHost int

	// Local tools.
	AggregateMaxProcs int
	RsyncPath         string
	GDALPath          string
	ZipPath           string

	// Optional publication notifications.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	connectTimeout, err := parsePositiveDuration("FETCH_CONNECT_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	totalTimeout, err := parsePositiveDuration("FETCH_TOTAL_TIMEOUT", "300s")
	if err != nil {
		return nil, err
	}

	rate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FETCH_RATE_PER_SECOND", "2"), 64)
	if err != nil || rate <= 0 {
		return nil, errors.New("invalid FETCH_RATE_PER_SECOND")
	}
	maxConns, err := parsePositiveInt("FETCH_MAX_CONNS_PER_HOST", "2")
	if err != nil {
		return nil, err
	}
	maxProcs, err := parsePositiveInt("AGGREGATE_MAX_PROCS", "4")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectConfigPath: sharedcfg.EnvOrDefault("CONFIG_PATH", "config/project_configuration.yaml"),
		DatasetConfigPath: sharedcfg.EnvOrDefault("DATASET_CONFIG_PATH", "config/hdx_dataset_static.yaml"),
		TempDir:           sharedcfg.EnvOrDefault("TEMP_DIR", os.TempDir()+"/hdx-scraper-chc_ucsb"),
		SavedDir:          sharedcfg.EnvOrDefault("SAVED_DIR", "saved_data"),
		HTTPAddr:          os.Getenv("HTTP_ADDR"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,

		HDXSiteURL: sharedcfg.EnvOrDefault("HDX_SITE_URL", "https://data.humdata.org"),
		HDXAPIKey:  os.Getenv("HDX_API_KEY"),
		UserAgent:  sharedcfg.EnvOrDefault("USER_AGENT", "hdx-scraper-chc_ucsb"),

		FetchConnectTimeout:  connectTimeout,
		FetchTotalTimeout:    totalTimeout,
		FetchRatePerSecond:   rate,
		FetchMaxConnsPerHost: maxConns,

		AggregateMaxProcs: maxProcs,
		RsyncPath:         sharedcfg.EnvOrDefault("RSYNC_PATH", "rsync"),
		GDALPath:          sharedcfg.EnvOrDefault("GDAL_PATH", "gdal"),
		ZipPath:           sharedcfg.EnvOrDefault("ZIP_PATH", "zip"),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "chc-resources-published"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.TempDir == "" {
		return nil, errors.New("TEMP_DIR is required")
	}
	if cfg.FetchTotalTimeout < cfg.FetchConnectTimeout {
		return nil, errors.New("FETCH_TOTAL_TIMEOUT must not be shorter than FETCH_CONNECT_TIMEOUT")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
