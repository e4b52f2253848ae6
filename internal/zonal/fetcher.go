package zonal

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// Downloader fetches a remote artifact to a local path.
type Downloader interface {
	Retrieve(ctx context.Context, rawURL, dst string) error
}

// Fetcher downloads each task's raster before reducing it.
type Fetcher struct {
	agg        *Aggregator
	downloader Downloader
	perSecond  float64
}

// NewFetcher creates a Fetcher. perSecond caps request starts per second
// within one batch.
func NewFetcher(agg *Aggregator, downloader Downloader, perSecond float64) *Fetcher {
	if perSecond <= 0 {
		perSecond = 2
	}
	return &Fetcher{agg: agg, downloader: downloader, perSecond: perSecond}
}

// ProcessBatch downloads and reduces every task. The limiter lives only for
// this call, so consecutive batches never share pacing state.
func (f *Fetcher) ProcessBatch(ctx context.Context, tasks []Task) []Result {
	limiter := rate.NewLimiter(rate.Limit(f.perSecond), int(math.Max(1, math.Ceil(f.perSecond))))
	start := domain.Now()

	results := runBatch(ctx, f.agg.maxProcs, tasks, f.agg.logger, func(ctx context.Context, t Task) Result {
		if err := limiter.Wait(ctx); err != nil {
			return f.agg.result(t, "", err)
		}
		taskStart := domain.Now()
		defer func() {
			f.agg.metrics.AggregationDuration.Observe(domain.Since(taskStart).Seconds())
		}()
		if err := f.downloader.Retrieve(ctx, t.URL, t.RasterPath); err != nil {
			return f.agg.result(t, "", err)
		}
		out, err := f.agg.Process(ctx, t)
		return f.agg.result(t, out, err)
	})
	f.agg.logger.Info("fetch batch complete", "tasks", len(tasks), "duration", domain.Since(start))
	return results
}
