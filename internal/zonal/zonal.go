package zonal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/chc-cmip6-etl/internal/command"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
	"github.com/couchcryptid/chc-cmip6-etl/internal/retriever"
)

// ErrToolFailed is returned when the statistics tool cannot produce a table.
var ErrToolFailed = errors.New("zonal: statistics tool failed")

// Task reduces one raster.
type Task struct {
	Key        domain.ScenarioKey
	RasterPath string
	OutputPath string
	Stat       domain.Stat
	// URL is the remote raster, used only by Fetcher.
	URL string
}

// Result is a task's outcome. Output is empty when the task failed.
type Result struct {
	Task   Task
	Output string
	Status int
	Err    error
}

// OK reports whether the task produced a row table.
func (r Result) OK() bool { return r.Output != "" }

// Aggregator runs the statistics tool against one boundary file shared
// read-only by every task.
type Aggregator struct {
	runner     command.Runner
	binary     string
	boundaries string
	maxProcs   int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates an Aggregator. maxProcs bounds concurrent tool processes per batch.
func New(runner command.Runner, binary, boundaries string, maxProcs int, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	if binary == "" {
		binary = "gdal"
	}
	if maxProcs <= 0 {
		maxProcs = 1
	}
	return &Aggregator{
		runner:     runner,
		binary:     binary,
		boundaries: boundaries,
		maxProcs:   maxProcs,
		logger:     logger,
		metrics:    metrics,
	}
}

// Args builds the zonal-stats argument list.
func Args(input, output, boundaries string, stat domain.Stat) []string {
	return []string{
		"raster", "zonal-stats",
		input, output,
		"--output-format=csv",
		"--overwrite",
		"--zones=" + boundaries,
		"--include-field=ISO_3",
		"--stat=" + string(stat),
	}
}

// Process reduces one local raster and returns the row table path.
func (a *Aggregator) Process(ctx context.Context, task Task) (string, error) {
	if _, err := os.Stat(task.RasterPath); err != nil {
		return "", fmt.Errorf("%w: raster: %v", ErrToolFailed, err)
	}
	if _, err := os.Stat(a.boundaries); err != nil {
		return "", fmt.Errorf("%w: boundaries: %v", ErrToolFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0o755); err != nil {
		return "", err
	}

	raw := task.OutputPath + ".raw.csv"
	defer os.Remove(raw)

	out, err := a.runner.Run(ctx, command.Spec{
		Name: a.binary,
		Args: Args(task.RasterPath, raw, a.boundaries, task.Stat),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.logger.Error("command failed", "file", filepath.Base(task.RasterPath), "stderr", string(out.Stderr))
		return "", fmt.Errorf("%w: %s: %v", ErrToolFailed, filepath.Base(task.RasterPath), err)
	}

	kept, dropped, err := WriteRows(raw, task.OutputPath, task.Key, task.Stat)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolFailed, filepath.Base(task.RasterPath), err)
	}
	a.logger.Debug("rows written", "file", filepath.Base(task.OutputPath), "rows", kept, "dropped", dropped)
	return task.OutputPath, nil
}

// ProcessBatch reduces local rasters concurrently. Every task is accounted
// for in the returned slice, which is in completion order.
func (a *Aggregator) ProcessBatch(ctx context.Context, tasks []Task) []Result {
	start := domain.Now()
	results := runBatch(ctx, a.maxProcs, tasks, a.logger, func(ctx context.Context, t Task) Result {
		taskStart := domain.Now()
		out, err := a.Process(ctx, t)
		a.metrics.AggregationDuration.Observe(domain.Since(taskStart).Seconds())
		return a.result(t, out, err)
	})
	a.logger.Info("aggregation batch complete", "tasks", len(tasks), "duration", domain.Since(start))
	return results
}

// result classifies err, logs it at the severity its class deserves, and
// records metrics.
func (a *Aggregator) result(t Task, out string, err error) Result {
	status := Classify(err)
	a.metrics.Aggregations.WithLabelValues(strconv.Itoa(status)).Inc()
	if err == nil {
		return Result{Task: t, Output: out, Status: status}
	}

	var statusErr *retriever.StatusError
	switch {
	case status == domain.StatusTimeout:
		a.logger.Debug("request timeout", "url", t.URL, "file", filepath.Base(t.RasterPath), "error", err)
	case errors.As(err, &statusErr):
		a.logger.Error("remote error", "status", statusErr.Code, "url", statusErr.URL)
	default:
		a.logger.Error("aggregation failed", "file", filepath.Base(t.RasterPath), "url", t.URL, "error", err)
	}
	return Result{Task: t, Status: status, Err: err}
}

// Classify maps a task error to its status code.
func Classify(err error) int {
	if err == nil {
		return domain.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.StatusTimeout
	}
	var statusErr *retriever.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return domain.StatusFailed
}

// runBatch runs fn for every task with at most limit in flight. A plain
// errgroup.Group is used so one task's failure never cancels the others;
// panics are converted into failed results.
func runBatch(ctx context.Context, limit int, tasks []Task, logger *slog.Logger, fn func(context.Context, Task) Result) []Result {
	results := make(chan Result, len(tasks))

	var g errgroup.Group
	g.SetLimit(limit)
	for _, t := range tasks {
		g.Go(func() error {
			results <- safeRun(ctx, t, logger, fn)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	collected := make([]Result, 0, len(tasks))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

func safeRun(ctx context.Context, t Task, logger *slog.Logger, fn func(context.Context, Task) Result) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("task panicked", "file", filepath.Base(t.RasterPath), "panic", p, "stack", string(debug.Stack()))
			res = Result{
				Task:   t,
				Status: domain.StatusFailed,
				Err:    fmt.Errorf("%w: panic: %v", ErrToolFailed, p),
			}
		}
	}()
	return fn(ctx, t)
}
