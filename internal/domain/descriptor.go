package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tag is a catalog vocabulary tag.
type Tag struct {
	Name         string `json:"name" yaml:"name"`
	VocabularyID string `json:"vocabulary_id,omitempty" yaml:"vocabulary_id,omitempty"`
}

// TimePeriod is an inclusive dataset date range.
type TimePeriod struct {
	Start time.Time
	End   time.Time
}

// String renders the range the way the catalog stores dataset_date.
func (p TimePeriod) String() string {
	const layout = "2006-01-02T15:04:05"
	return fmt.Sprintf("[%s TO %s]", p.Start.Format(layout), p.End.Format(layout))
}

// YearsPeriod spans whole calendar years from startYear to endYear.
func YearsPeriod(startYear, endYear int) TimePeriod {
	return TimePeriod{
		Start: time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(endYear, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
}

// Dataset describes a dataset to create in the catalog.
type Dataset struct {
	ID          string
	Name        string
	Title       string
	OwnerOrg    string
	Notes       string
	TimePeriod  TimePeriod
	Tags        []Tag
	Groups      []string
	Subnational bool
	// Extras carries static metadata fields (license, methodology, ...)
	// merged from the dataset YAML.
	Extras map[string]string
	// Resources holds the resources created together with the dataset. The
	// pipeline attaches only the first one here.
	Resources []Resource
}

// Resource describes a file to attach to a dataset.
type Resource struct {
	ID          string
	Name        string
	Description string
	Format      string
	URL         string
	// FilePath is the local file uploaded with the resource.
	FilePath string
}

// CreateOptions mirrors the catalog's dataset creation flags.
type CreateOptions struct {
	RemoveAdditionalResources bool
	HXLUpdate                 bool
	UpdatedByScript           string
	Batch                     string
}

// Publication is emitted after a resource has been created in the catalog.
type Publication struct {
	DatasetID    string    `json:"dataset_id"`
	DatasetName  string    `json:"dataset_name"`
	ResourceID   string    `json:"resource_id,omitempty"`
	ResourceName string    `json:"resource_name"`
	Scenario     string    `json:"scenario"`
	PublishedAt  time.Time `json:"published_at"`
}

// UpdatedByScript identifies this scraper in catalog audit fields.
const UpdatedByScript = "HDX Scraper: CHC UCSB"

// WorldGroup is the location group every dataset is filed under.
const WorldGroup = "world"

// tagVocabulary is the catalog's approved tag vocabulary.
const tagVocabulary = "b891512e-9516-4bf5-962a-7a289772a2a1"

// DefaultTags returns the tags attached to every dataset.
func DefaultTags() []Tag {
	return []Tag{
		{Name: "climate-weather", VocabularyID: tagVocabulary},
		{Name: "environment", VocabularyID: tagVocabulary},
	}
}

// DatasetName is the catalog name of a scenario's dataset, e.g.
// "chc_ucsb_tmax_2030_ssp245".
func DatasetName(scenario string) string {
	return "chc_ucsb_tmax_" + strings.ToLower(scenario)
}

// DatasetTitle is the human title of a scenario's dataset.
func DatasetTitle(scenario string) (string, error) {
	period, pathway, err := ParseScenario(scenario)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Projected Daily Maximum Temperature Extremes by Country: %s %s Scenario (CHC-CMIP6)", pathway, period), nil
}

// TableDescription describes the merged statistics table of a scenario.
func TableDescription(products []string, stat Stat) string {
	return fmt.Sprintf("CHC-CMIP6 TMax Extremes per Country for %s (%s per month)", strings.Join(products, ", "), stat)
}

// ResourceDescription describes one product/month resource.
func ResourceDescription(product string, month int) string {
	return fmt.Sprintf("CHC-CMIP6 TMax Extremes per Country for %s in %s", product, MonthName(month))
}
