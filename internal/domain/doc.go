// Package domain models the CHC-CMIP6 temperature-extreme products and the
// catalog descriptors built from them.
//
// # Data Source
//
// The Climate Hazards Center publishes monthly GeoTIFF grids per scenario at
//
//	{base_url}/{scenario}/{MM}/{file}.tif
//
// where scenario is a projection period joined to an SSP pathway
// ("2030_SSP245", "2050_SSP585") and file is produced from the configured
// base_file template, e.g. "Daily_Tmax_{year}_{month}_{product}". Placeholders
// are {year}, {month} (two digits) and {product}.
//
// # Zonal Rows
//
// Each raster is reduced against the admin-0 boundary layer to one row per
// country polygon. Rows are emitted as
//
//	location_code,year,month,product,<stat>
//
// Rows whose ISO3 code is empty or whose statistic is a no-data sentinel
// ("nan", "-9999") are dropped when the row is generated, never later.
//
// # Buckets
//
// A bucket is one (scenario, month) pair. It owns a working directory
// {tempdir}/{scenario}/{MM} and a done.txt checkpoint marker listing the
// row tables it produced.
//
// # Status Codes
//
// Per-raster task outcomes are reported as integers: 200 on success, 408 for
// request timeouts, the HTTP status for remote errors, and -99 for anything
// else (tool failures, unreadable output, panics).
package domain
