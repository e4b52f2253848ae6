package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
)

// geotiffResources packages each product/month's rasters into one archive
// resource, product-major and month-minor. A month whose sync or packaging
// fails is left out; its rasters stay on disk.
func (p *Pipeline) geotiffResources(ctx context.Context, scenario string) ([]domain.Resource, error) {
	var resources []domain.Resource
	for _, product := range p.project.Products {
		for _, month := range domain.Months() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, ok := p.packageMonth(ctx, scenario, product, month)
			if ok {
				resources = append(resources, res)
			}
		}
	}
	p.setState(scenario, domain.StatePackaged)
	return resources, nil
}

func (p *Pipeline) packageMonth(ctx context.Context, scenario, product string, month int) (domain.Resource, bool) {
	key := domain.ScenarioKey{Scenario: scenario, Product: product, Year: p.project.StartYear, Month: month}
	base := key.BaseName(p.project.BaseFile)
	dir := filepath.Join(p.bucketDir(scenario, month), product)

	p.setState(scenario, domain.StateFetching)
	files, err := p.sync(ctx, domain.RemoteDir(p.project.BaseURL, scenario, month), dir, product)
	if err != nil {
		p.logger.Error("sync failed", "scenario", scenario, "product", product, "month", month, "error", err)
		return domain.Resource{}, false
	}
	if len(files) == 0 {
		p.logger.Info("no rasters", "scenario", scenario, "product", product, "month", month)
		return domain.Resource{}, false
	}

	p.setState(scenario, domain.StatePackaging)
	archive := filepath.Join(p.workDir, scenario, base+".zip")
	if err := p.stages.Packager.Package(ctx, dir, archive); err != nil {
		p.logger.Error("packaging failed", "scenario", scenario, "product", product, "month", month, "error", err)
		return domain.Resource{}, false
	}
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Warn("remove raster directory failed", "file", dir, "error", err)
	}

	return domain.Resource{
		Name:        base,
		Description: domain.ResourceDescription(product, month),
		Format:      "geotiff",
		FilePath:    archive,
	}, true
}
