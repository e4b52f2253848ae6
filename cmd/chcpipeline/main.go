// Command chcpipeline publishes CHC-CMIP6 temperature-extreme projections to
// the Humanitarian Data Exchange, one dataset per configured scenario.
//
// Usage:
//
//	go run ./cmd/chcpipeline [-save | -use-saved] [-mode stats|geotiff]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/couchcryptid/chc-cmip6-etl/internal/adapter/hdx"
	"github.com/couchcryptid/chc-cmip6-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/chc-cmip6-etl/internal/adapter/kafka"
	"github.com/couchcryptid/chc-cmip6-etl/internal/boundary"
	"github.com/couchcryptid/chc-cmip6-etl/internal/checkpoint"
	"github.com/couchcryptid/chc-cmip6-etl/internal/command"
	"github.com/couchcryptid/chc-cmip6-etl/internal/config"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
	"github.com/couchcryptid/chc-cmip6-etl/internal/packaging"
	"github.com/couchcryptid/chc-cmip6-etl/internal/pipeline"
	"github.com/couchcryptid/chc-cmip6-etl/internal/rastersync"
	"github.com/couchcryptid/chc-cmip6-etl/internal/retriever"
	"github.com/couchcryptid/chc-cmip6-etl/internal/zonal"
)

type flags struct {
	save     bool
	useSaved bool
	mode     string
}

func main() {
	var f flags
	flag.BoolVar(&f.save, "save", false, "save downloaded data for later -use-saved runs")
	flag.BoolVar(&f.useSaved, "use-saved", false, "use saved data instead of downloading")
	flag.StringVar(&f.mode, "mode", "", "override the configured mode (stats or geotiff)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, f, logger); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, f flags, logger *slog.Logger) error {
	project, err := config.LoadProject(cfg.ProjectConfigPath)
	if err != nil {
		return err
	}
	if f.mode != "" {
		project.Mode = config.Mode(f.mode)
		if err := project.Validate(); err != nil {
			return err
		}
	}
	metadata, err := config.LoadDatasetMetadata(cfg.DatasetConfigPath)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	work, err := openBucket(cfg.TempDir)
	if err != nil {
		return err
	}
	defer work.Close()

	var saved *blob.Bucket
	if f.save || f.useSaved {
		if saved, err = openBucket(cfg.SavedDir); err != nil {
			return err
		}
		defer saved.Close()
	}

	ret, err := retriever.New(saved, cfg.SavedDir, retriever.Options{
		UserAgent:       cfg.UserAgent,
		ConnectTimeout:  cfg.FetchConnectTimeout,
		TotalTimeout:    cfg.FetchTotalTimeout,
		MaxConnsPerHost: cfg.FetchMaxConnsPerHost,
		Save:            f.save,
		UseSaved:        f.useSaved,
	}, logger)
	if err != nil {
		return err
	}

	catalog := hdx.NewClient(cfg.HDXSiteURL, cfg.HDXAPIKey, cfg.UserAgent, cfg.FetchTotalTimeout, logger)
	exec := command.Exec{}

	stages := pipeline.Stages{
		Syncer:      rastersync.New(exec, cfg.RsyncPath, logger, metrics),
		Source:      ret,
		Checkpoints: checkpoint.New(work),
		Packager:    packaging.New(exec, cfg.ZipPath, logger, metrics),
		Catalog:     catalog,
	}

	boundaries := ""
	if project.Mode == config.ModeStats {
		src := boundary.NewSource(catalog, ret, filepath.Join(cfg.TempDir, "boundaries"), logger)
		if boundaries, err = resolveBoundaries(ctx, src, project.Boundaries, logger); err != nil {
			return err
		}
		if boundaries != "" {
			agg := zonal.New(exec, cfg.GDALPath, boundaries, cfg.AggregateMaxProcs, logger, metrics)
			stages.Aggregator = agg
			if project.Fetch == config.FetchHTTP {
				stages.Syncer = nil
				stages.Aggregator = zonal.NewFetcher(agg, ret, cfg.FetchRatePerSecond)
			}
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		notifier := kafkaadapter.NewNotifier(cfg, logger)
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		stages.Notifier = notifier
	}

	batch := uuid.NewString()
	p := pipeline.New(stages, pipeline.Options{
		Project:  project,
		Metadata: metadata,
		WorkDir:  cfg.TempDir,
		Batch:    batch,
	}, logger, metrics)

	if project.Mode == config.ModeStats && boundaries == "" {
		p.SkipAll("boundary resource not found")
		logger.Info("run complete", "batch", batch, "states", p.States())
		return nil
	}

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	logger.Info("run starting", "batch", batch, "mode", project.Mode, "fetch", project.Fetch,
		"save", f.save, "use_saved", f.useSaved)
	err = p.RunAll(ctx)
	logger.Info("run complete", "batch", batch, "states", p.States())
	return err
}

// resolveBoundaries returns the local boundary file. A boundary resource
// missing from the catalog yields an empty path and no error.
func resolveBoundaries(ctx context.Context, src *boundary.Source, b config.Boundaries, logger *slog.Logger) (string, error) {
	path, err := src.Resolve(ctx, b.Dataset, b.Resource)
	if errors.Is(err, boundary.ErrNotFound) {
		logger.Warn("boundary resource not found", "dataset", b.Dataset, "resource", b.Resource, "error", err)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve boundaries: %w", err)
	}
	return path, nil
}

func openBucket(dir string) (*blob.Bucket, error) {
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", dir, err)
	}
	return b, nil
}
