// Package zonal reduces rasters to per-country statistics with the GDAL
// zonal-stats tool.
//
// Each task runs
//
//	gdal raster zonal-stats <raster> <out> --output-format=csv --overwrite \
//	    --zones=<boundaries> --include-field=ISO_3 --stat=<count|mean>
//
// and rewrites the tool's CSV into a row table (see domain.RowHeader),
// dropping rows without an ISO3 code or with a no-data value.
//
// Batches run with a bounded number of concurrent child processes. A task's
// failure is reported in its Result and never cancels its siblings; results
// arrive in completion order, so callers re-sort before merging.
//
// Fetcher is the network variant: it downloads each raster before reducing
// it, pacing request starts with a token bucket created per batch.
package zonal
