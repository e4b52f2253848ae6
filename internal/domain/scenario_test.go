package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplate FileTemplate = "Daily_Tmax_{product}_{month}"

func TestFileTemplate_Format(t *testing.T) {
	assert.Equal(t, "Daily_Tmax_cnt_Tmaxgt30C_01", testTemplate.Format(2030, 1, "cnt_Tmaxgt30C"))
	assert.Equal(t, "Daily_Tmax_cnt_Tmaxgt30C_12", testTemplate.Format(2030, 12, "cnt_Tmaxgt30C"))

	yearly := FileTemplate("{year}/{product}.{year}.{month}")
	assert.Equal(t, "2050/p95.2050.07", yearly.Format(2050, 7, "p95"))
}

func TestScenarioKey_Names(t *testing.T) {
	k := ScenarioKey{Scenario: "2030_SSP245", Product: "cnt_Tmaxgt30C", Year: 2030, Month: 3}

	assert.Equal(t, "Daily_Tmax_cnt_Tmaxgt30C_03", k.BaseName(testTemplate))
	assert.Equal(t, "Daily_Tmax_cnt_Tmaxgt30C_03.tif", k.RasterName(testTemplate))
	assert.Equal(t, "2030_SSP245_03_Daily_Tmax_cnt_Tmaxgt30C_03.csv", k.OutputTableName(testTemplate))
	assert.Equal(t, "https://x/2030_SSP245/03/Daily_Tmax_cnt_Tmaxgt30C_03.tif", k.RasterURL("https://x/", testTemplate))
	assert.Equal(t, "2030_SSP245/03", k.BucketKey())
}

func TestRemoteDir(t *testing.T) {
	assert.Equal(t, "rsync://host/Tmax/2050_SSP585/11", RemoteDir("rsync://host/Tmax", "2050_SSP585", 11))
	assert.Equal(t, "rsync://host/Tmax/2050_SSP585/11", RemoteDir("rsync://host/Tmax/", "2050_SSP585", 11))
}

func TestIncludePattern(t *testing.T) {
	assert.Equal(t, "*cnt_Tmaxgt30C*.tif", IncludePattern("cnt_Tmaxgt30C"))
}

func TestMonths(t *testing.T) {
	months := Months()
	require.Len(t, months, 12)
	assert.Equal(t, 1, months[0])
	assert.Equal(t, 12, months[11])
	assert.Equal(t, "January", MonthName(1))
	assert.Equal(t, "December", MonthName(12))
	assert.Equal(t, "09", MonthString(9))
}

func TestParseScenario(t *testing.T) {
	tests := []struct {
		in      string
		period  string
		pathway string
		wantErr bool
	}{
		{in: "2030_SSP245", period: "2030", pathway: "SSP245"},
		{in: "2050_SSP585", period: "2050", pathway: "SSP585"},
		{in: "SSP245", wantErr: true},
		{in: "_SSP245", wantErr: true},
		{in: "2030_", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			period, pathway, err := ParseScenario(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.period, period)
			assert.Equal(t, tt.pathway, pathway)
		})
	}
}
