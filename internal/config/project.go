package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// Mode selects how scenario rasters are turned into resources.
type Mode string

const (
	// ModeStats reduces rasters to per-country zonal statistics tables.
	ModeStats Mode = "stats"
	// ModeGeoTIFF republishes each month/product's rasters as a zip archive.
	ModeGeoTIFF Mode = "geotiff"
)

// Fetch selects how rasters reach the statistics tool in stats mode.
type Fetch string

const (
	// FetchSync mirrors each bucket's remote directory with rsync.
	FetchSync Fetch = "sync"
	// FetchHTTP downloads each expected raster over HTTP.
	FetchHTTP Fetch = "http"
)

// Boundaries names the catalog dataset and resource holding admin-0 polygons.
type Boundaries struct {
	Dataset  string `yaml:"dataset"`
	Resource string `yaml:"resource"`
}

// Project is the scraper's project configuration.
type Project struct {
	BaseURL    string              `yaml:"base_url"`
	BaseFile   domain.FileTemplate `yaml:"base_file"`
	Products   []string            `yaml:"products"`
	Scenarios  []string            `yaml:"scenarios"`
	StartYear  int                 `yaml:"start_year"`
	EndYear    int                 `yaml:"end_year"`
	Mode       Mode                `yaml:"mode"`
	Fetch      Fetch               `yaml:"fetch"`
	Stat       domain.Stat         `yaml:"stat"`
	Boundaries Boundaries          `yaml:"boundaries"`
	OwnerOrg   string              `yaml:"owner_org"`
}

// DefaultProject returns a Project with the defaults applied to unset fields.
func DefaultProject() Project {
	return Project{
		Mode:  ModeGeoTIFF,
		Fetch: FetchSync,
		Stat:  domain.StatCount,
	}
}

// LoadProject reads a project configuration YAML file.
func LoadProject(path string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("read project config: %w", err)
	}
	return ParseProject(data)
}

// ParseProject decodes and validates project configuration YAML.
func ParseProject(data []byte) (Project, error) {
	p := DefaultProject()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Project{}, fmt.Errorf("parse project config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Validate checks required fields and ranges.
func (p Project) Validate() error {
	var errs []error
	if p.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if p.BaseFile == "" {
		errs = append(errs, errors.New("base_file is required"))
	} else if !strings.Contains(string(p.BaseFile), "{product}") {
		errs = append(errs, errors.New("base_file must contain {product}"))
	}
	if len(p.Products) == 0 {
		errs = append(errs, errors.New("products must not be empty"))
	}
	if p.StartYear <= 0 || p.EndYear < p.StartYear {
		errs = append(errs, fmt.Errorf("invalid year range %d-%d", p.StartYear, p.EndYear))
	}
	for _, s := range p.Scenarios {
		if _, _, err := domain.ParseScenario(s); err != nil {
			errs = append(errs, err)
		}
	}
	switch p.Mode {
	case ModeStats, ModeGeoTIFF:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", p.Mode))
	}
	switch p.Fetch {
	case FetchSync, FetchHTTP:
	default:
		errs = append(errs, fmt.Errorf("unknown fetch %q", p.Fetch))
	}
	if !p.Stat.Valid() {
		errs = append(errs, fmt.Errorf("unknown stat %q", p.Stat))
	}
	if p.Mode == ModeStats && (p.Boundaries.Dataset == "" || p.Boundaries.Resource == "") {
		errs = append(errs, errors.New("boundaries.dataset and boundaries.resource are required in stats mode"))
	}
	return errors.Join(errs...)
}

// Years lists StartYear through EndYear inclusive.
func (p Project) Years() []int {
	years := make([]int, 0, p.EndYear-p.StartYear+1)
	for y := p.StartYear; y <= p.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// DatasetMetadata is the static part of every dataset descriptor.
type DatasetMetadata struct {
	Notes       string            `yaml:"notes"`
	Tags        []domain.Tag      `yaml:"tags"`
	Groups      []string          `yaml:"groups"`
	Subnational bool              `yaml:"subnational"`
	Extras      map[string]string `yaml:",inline"`
}

// LoadDatasetMetadata reads the static dataset metadata YAML.
func LoadDatasetMetadata(path string) (DatasetMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DatasetMetadata{}, fmt.Errorf("read dataset metadata: %w", err)
	}
	var m DatasetMetadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return DatasetMetadata{}, fmt.Errorf("parse dataset metadata: %w", err)
	}
	return m, nil
}

// Apply merges the static metadata into d. Fields already set on d win,
// except tags and groups which are unioned.
func (m DatasetMetadata) Apply(d *domain.Dataset) {
	if d.Notes == "" {
		d.Notes = m.Notes
	}
	for _, tag := range m.Tags {
		if !slices.ContainsFunc(d.Tags, func(t domain.Tag) bool { return t.Name == tag.Name }) {
			d.Tags = append(d.Tags, tag)
		}
	}
	for _, g := range m.Groups {
		if !slices.Contains(d.Groups, g) {
			d.Groups = append(d.Groups, g)
		}
	}
	if m.Subnational {
		d.Subnational = true
	}
	if len(m.Extras) > 0 && d.Extras == nil {
		d.Extras = make(map[string]string, len(m.Extras))
	}
	for k, v := range m.Extras {
		if _, ok := d.Extras[k]; !ok {
			d.Extras[k] = v
		}
	}
}
