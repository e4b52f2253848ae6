package domain

import (
	"strconv"
	"strings"
)

// Stat is the zonal statistic requested from the statistics tool.
type Stat string

const (
	StatCount Stat = "count"
	StatMean  Stat = "mean"
)

// Valid reports whether s is a supported statistic.
func (s Stat) Valid() bool {
	return s == StatCount || s == StatMean
}

// NoDataValue is the magic "no data" value written by the CHC rasters.
const NoDataValue = "-9999"

// ZonalRow is one boundary polygon's statistic for one raster.
type ZonalRow struct {
	LocationCode string
	Year         int
	Month        int
	Product      string
	Value        string
}

// RowHeader returns the column names of a row table for the given statistic.
func RowHeader(stat Stat) []string {
	return []string{"location_code", "year", "month", "product", string(stat)}
}

// Record renders the row in RowHeader column order.
func (r ZonalRow) Record() []string {
	return []string{
		r.LocationCode,
		strconv.Itoa(r.Year),
		strconv.Itoa(r.Month),
		r.Product,
		r.Value,
	}
}

// Publishable reports whether the row may appear in published output:
// it needs a location code and a value that is not a no-data sentinel.
func (r ZonalRow) Publishable() bool {
	return strings.TrimSpace(r.LocationCode) != "" && !IsSentinel(r.Value)
}

// IsSentinel reports whether v marks missing data.
func IsSentinel(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return true
	}
	if v == NoDataValue {
		return true
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f == -9999
}
