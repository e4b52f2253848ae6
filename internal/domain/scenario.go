package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// FileTemplate is a base filename pattern with {year}, {month} and {product}
// placeholders, e.g. "Daily_Tmax_{product}_{month}".
type FileTemplate string

// Format fills the template. Month is rendered as two digits.
func (t FileTemplate) Format(year, month int, product string) string {
	r := strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{month}", MonthString(month),
		"{product}", product,
	)
	return r.Replace(string(t))
}

// ScenarioKey identifies one raster of one scenario. All remote URLs, local
// paths and output names are derived from it.
type ScenarioKey struct {
	Scenario string
	Product  string
	Year     int
	Month    int
}

// BaseName is the template rendered for this key, without extension.
func (k ScenarioKey) BaseName(t FileTemplate) string {
	return t.Format(k.Year, k.Month, k.Product)
}

// RasterName is the GeoTIFF filename published upstream for this key.
func (k ScenarioKey) RasterName(t FileTemplate) string {
	return k.BaseName(t) + ".tif"
}

// OutputTableName is the row table produced for this key:
// {scenario}_{MM}_{base}.csv.
func (k ScenarioKey) OutputTableName(t FileTemplate) string {
	return fmt.Sprintf("%s_%s_%s.csv", k.Scenario, MonthString(k.Month), k.BaseName(t))
}

// RasterURL is the direct download URL for this key.
func (k ScenarioKey) RasterURL(baseURL string, t FileTemplate) string {
	return RemoteDir(baseURL, k.Scenario, k.Month) + "/" + k.RasterName(t)
}

// BucketKey is the slash separated (scenario, month) bucket identifier,
// relative to the working directory.
func (k ScenarioKey) BucketKey() string {
	return BucketKey(k.Scenario, k.Month)
}

// BucketKey joins scenario and month into a bucket identifier, e.g. "2030_SSP245/01".
func BucketKey(scenario string, month int) string {
	return path.Join(scenario, MonthString(month))
}

// RemoteDir is the remote directory holding a scenario's rasters for a month.
func RemoteDir(baseURL, scenario string, month int) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), scenario, MonthString(month))
}

// IncludePattern is the sync glob selecting a product's rasters.
func IncludePattern(product string) string {
	return "*" + product + "*.tif"
}

// MonthString renders a month as two digits.
func MonthString(month int) string {
	return fmt.Sprintf("%02d", month)
}

// MonthName returns the English month name, e.g. "January".
func MonthName(month int) string {
	return time.Month(month).String()
}

// Months lists 1 through 12.
func Months() []int {
	return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
}

// ParseScenario splits "2030_SSP245" into its period and pathway.
func ParseScenario(scenario string) (period, pathway string, err error) {
	period, pathway, ok := strings.Cut(scenario, "_")
	if !ok || period == "" || pathway == "" {
		return "", "", fmt.Errorf("invalid scenario %q: want <period>_<pathway>", scenario)
	}
	return period, pathway, nil
}
