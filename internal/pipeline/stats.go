package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/chc-cmip6-etl/internal/config"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/merge"
	"github.com/couchcryptid/chc-cmip6-etl/internal/zonal"
)

// statsResources reduces every month bucket of a scenario and merges the row
// tables into one CSV resource. It returns no resources when nothing merged.
func (p *Pipeline) statsResources(ctx context.Context, scenario string) ([]domain.Resource, error) {
	var tables []string
	for _, month := range domain.Months() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths, err := p.processBucket(ctx, scenario, month)
		if err != nil {
			p.logger.Error("bucket failed", "scenario", scenario, "month", month, "error", err)
			continue
		}
		tables = append(tables, paths...)
	}

	name := domain.DatasetName(scenario)
	result, err := merge.Merge(tables, filepath.Join(p.workDir, name+".csv"))
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	p.setState(scenario, domain.StateMerged)
	if result == nil {
		return nil, nil
	}
	p.metrics.MergedRows.Add(float64(result.Rows))
	p.logger.Info("tables merged", "scenario", scenario, "tables", len(tables), "rows", result.Rows)

	return []domain.Resource{{
		Name:        name + ".csv",
		Description: domain.TableDescription(p.project.Products, p.project.Stat),
		Format:      "csv",
		FilePath:    result.Path,
	}}, nil
}

// processBucket returns the row tables of one (scenario, month) bucket in
// canonical (year, product) order, from its checkpoint when one exists.
func (p *Pipeline) processBucket(ctx context.Context, scenario string, month int) ([]string, error) {
	start := domain.Now()
	defer func() { p.metrics.BucketDuration.Observe(domain.Since(start).Seconds()) }()

	bucket := domain.BucketKey(scenario, month)
	done, err := p.stages.Checkpoints.Has(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check checkpoint %s: %w", bucket, err)
	}
	if done {
		p.metrics.CheckpointHits.Inc()
		p.logger.Info("checkpoint found", "scenario", scenario, "month", month)
		paths, err := p.stages.Checkpoints.Read(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %s: %w", bucket, err)
		}
		return p.existing(paths), nil
	}

	p.setState(scenario, domain.StateFetching)
	tasks, unmatched, err := p.bucketTasks(ctx, scenario, month)
	if err != nil {
		return nil, err
	}
	defer p.removeRasters(unmatched)
	if len(tasks) == 0 {
		p.logger.Info("no rasters", "scenario", scenario, "month", month)
		return nil, nil
	}

	p.setState(scenario, domain.StateAggregating)
	results := p.stages.Aggregator.ProcessBatch(ctx, tasks)

	ok := make(map[string]bool, len(results))
	failed := 0
	for _, r := range results {
		if r.OK() {
			ok[r.Task.OutputPath] = true
		} else {
			failed++
		}
	}
	p.removeRasters(rasterPaths(results))

	paths := make([]string, 0, len(ok))
	for _, t := range tasks {
		if ok[t.OutputPath] {
			paths = append(paths, t.OutputPath)
		}
	}

	if failed > 0 {
		p.logger.Warn("bucket incomplete, checkpoint not written",
			"scenario", scenario, "month", month, "failed", failed, "succeeded", len(paths))
		return paths, nil
	}
	if err := p.stages.Checkpoints.Write(ctx, bucket, paths); err != nil {
		p.logger.Error("write checkpoint failed", "scenario", scenario, "month", month, "error", err)
	}
	return paths, nil
}

// bucketTasks lists the aggregation tasks of a bucket in canonical
// (year, product) order. With a Syncer, only rasters the sync reported are
// included; otherwise every expected raster is fetched by URL. Synced files
// matching no expected raster name are returned as unmatched.
func (p *Pipeline) bucketTasks(ctx context.Context, scenario string, month int) (tasks []zonal.Task, unmatched []string, err error) {
	dir := p.bucketDir(scenario, month)

	var synced map[string]bool
	if p.project.Fetch != config.FetchHTTP && p.stages.Syncer != nil {
		synced = make(map[string]bool)
		remote := domain.RemoteDir(p.project.BaseURL, scenario, month)
		for _, product := range p.project.Products {
			files, err := p.sync(ctx, remote, dir, product)
			if err != nil {
				return nil, nil, err
			}
			for _, f := range files {
				synced[filepath.Base(f)] = true
			}
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	for _, year := range p.project.Years() {
		for _, product := range p.project.Products {
			key := domain.ScenarioKey{Scenario: scenario, Product: product, Year: year, Month: month}
			raster := key.RasterName(p.project.BaseFile)
			if seen[raster] || (synced != nil && !synced[raster]) {
				continue
			}
			seen[raster] = true
			task := zonal.Task{
				Key:        key,
				RasterPath: filepath.Join(dir, raster),
				OutputPath: filepath.Join(dir, key.OutputTableName(p.project.BaseFile)),
				Stat:       p.project.Stat,
			}
			if synced == nil {
				task.URL = key.RasterURL(p.project.BaseURL, p.project.BaseFile)
			}
			tasks = append(tasks, task)
		}
	}
	for name := range synced {
		if !seen[name] {
			unmatched = append(unmatched, filepath.Join(dir, name))
		}
	}
	return tasks, unmatched, nil
}

// sync mirrors one product's rasters of a remote directory into dir.
func (p *Pipeline) sync(ctx context.Context, remote, dir, product string) ([]string, error) {
	source := remote
	if p.stages.Source != nil {
		source = p.stages.Source.SyncSource(remote)
	}
	files, err := p.stages.Syncer.Sync(ctx, source, dir, domain.IncludePattern(product))
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", product, err)
	}
	if p.stages.Source != nil {
		if err := p.stages.Source.SaveSynced(ctx, remote, dir, files); err != nil {
			p.logger.Warn("save synced files failed", "url", remote, "error", err)
		}
	}
	return files, nil
}

func rasterPaths(results []zonal.Result) []string {
	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.Task.RasterPath)
	}
	return paths
}

func (p *Pipeline) removeRasters(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("remove raster failed", "file", path, "error", err)
		}
	}
}

// existing filters checkpointed paths down to tables still on disk.
func (p *Pipeline) existing(paths []string) []string {
	out := paths[:0]
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			p.logger.Warn("checkpointed table missing", "file", path)
			continue
		}
		out = append(out, path)
	}
	return out
}
