package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/chc-cmip6-etl/internal/config"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
	"github.com/couchcryptid/chc-cmip6-etl/internal/zonal"
)

// Syncer mirrors remote rasters matching include into localDir.
type Syncer interface {
	Sync(ctx context.Context, source, localDir, include string) ([]string, error)
}

// SyncSource picks the rsync source for a remote directory and persists
// synced files when saving is enabled.
type SyncSource interface {
	SyncSource(remote string) string
	SaveSynced(ctx context.Context, remote, localDir string, files []string) error
}

// Aggregator reduces a batch of rasters. Every task appears in the result.
type Aggregator interface {
	ProcessBatch(ctx context.Context, tasks []zonal.Task) []zonal.Result
}

// Checkpointer records which row tables a bucket already produced.
type Checkpointer interface {
	Has(ctx context.Context, bucketDir string) (bool, error)
	Read(ctx context.Context, bucketDir string) ([]string, error)
	Write(ctx context.Context, bucketDir string, paths []string) error
}

// Packager archives a directory.
type Packager interface {
	Package(ctx context.Context, sourceDir, archivePath string) error
}

// Catalog is the external catalog client.
type Catalog interface {
	// CreateDataset creates d together with its attached resources and
	// returns it with catalog identifiers filled in.
	CreateDataset(ctx context.Context, d *domain.Dataset, opts domain.CreateOptions) (*domain.Dataset, error)
	CreateResource(ctx context.Context, r domain.Resource, datasetID string) (string, error)
}

// Notifier announces published resources.
type Notifier interface {
	Notify(ctx context.Context, pub domain.Publication) error
}

// Stages are the pipeline's collaborators. Syncer may be nil in stats mode
// when the Aggregator downloads rasters itself; Notifier is optional.
type Stages struct {
	Syncer      Syncer
	Source      SyncSource
	Aggregator  Aggregator
	Checkpoints Checkpointer
	Packager    Packager
	Catalog     Catalog
	Notifier    Notifier
}

// Options configures a Pipeline.
type Options struct {
	Project  config.Project
	Metadata config.DatasetMetadata
	// WorkDir holds bucket directories, checkpoints and packaged files.
	WorkDir string
	// Batch groups all catalog writes of one run.
	Batch string
}

// Pipeline drives every configured scenario from remote rasters to
// published catalog resources.
type Pipeline struct {
	stages   Stages
	project  config.Project
	metadata config.DatasetMetadata
	workDir  string
	batch    string
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu     sync.Mutex
	states map[string]domain.State
}

// New creates a Pipeline with the given stages and observability.
func New(stages Stages, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:   stages,
		project:  opts.Project,
		metadata: opts.Metadata,
		workDir:  opts.WorkDir,
		batch:    opts.Batch,
		logger:   logger,
		metrics:  metrics,
		states:   make(map[string]domain.State),
	}
}

// CheckReadiness returns nil once a run has started, which happens only
// after its inputs (boundaries included) were resolved.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not started a run yet")
	}
	return nil
}

// State returns the current state of a scenario.
func (p *Pipeline) State(scenario string) domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[scenario]
}

// States returns a snapshot of every scenario's state.
func (p *Pipeline) States() map[string]domain.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.states)
}

func (p *Pipeline) setState(scenario string, s domain.State) {
	p.mu.Lock()
	p.states[scenario] = s
	p.mu.Unlock()
	if s.Terminal() {
		p.metrics.Scenarios.WithLabelValues(s.String()).Inc()
	}
}

// RunAll runs every configured scenario in order. A failed scenario does not
// stop the others; all failures are returned joined.
func (p *Pipeline) RunAll(ctx context.Context) error {
	p.logger.Info("pipeline started", "scenarios", len(p.project.Scenarios), "mode", p.project.Mode)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.ready.Store(true)

	var errs []error
	for _, scenario := range p.project.Scenarios {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.Run(ctx, scenario); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SkipAll marks every configured scenario SKIPPED without running it. It is
// used when an input shared by all scenarios, such as the boundary layer, is
// missing from the catalog.
func (p *Pipeline) SkipAll(reason string) {
	for _, scenario := range p.project.Scenarios {
		p.setState(scenario, domain.StateSkipped)
	}
	p.logger.Warn("nothing to publish", "scenarios", len(p.project.Scenarios), "reason", reason)
}

// Run builds and publishes one scenario's dataset. It returns an error only
// when the scenario ends FAILED.
func (p *Pipeline) Run(ctx context.Context, scenario string) error {
	start := domain.Now()
	p.setState(scenario, domain.StatePending)

	ds, err := p.GenerateDataset(scenario)
	if err != nil {
		p.setState(scenario, domain.StateFailed)
		return err
	}

	var resources []domain.Resource
	switch p.project.Mode {
	case config.ModeStats:
		resources, err = p.statsResources(ctx, scenario)
	default:
		resources, err = p.geotiffResources(ctx, scenario)
	}
	if err != nil {
		p.setState(scenario, domain.StateFailed)
		return fmt.Errorf("scenario %s: %w", scenario, err)
	}
	if len(resources) == 0 {
		p.logger.Warn("nothing to publish", "scenario", scenario)
		p.setState(scenario, domain.StateSkipped)
		return nil
	}

	p.setState(scenario, domain.StatePublishing)
	if err := p.publish(ctx, scenario, ds, resources); err != nil {
		p.setState(scenario, domain.StateFailed)
		return fmt.Errorf("scenario %s: %w", scenario, err)
	}
	p.setState(scenario, domain.StateDone)
	p.logger.Info("scenario published",
		"scenario", scenario,
		"dataset", ds.Name,
		"resources", len(resources),
		"duration", domain.Since(start),
	)
	return nil
}

// GenerateDataset builds the dataset descriptor of a scenario, without
// resources.
func (p *Pipeline) GenerateDataset(scenario string) (*domain.Dataset, error) {
	title, err := domain.DatasetTitle(scenario)
	if err != nil {
		return nil, err
	}
	period, pathway, _ := domain.ParseScenario(scenario)
	ds := &domain.Dataset{
		Name:        domain.DatasetName(scenario),
		Title:       title,
		OwnerOrg:    p.project.OwnerOrg,
		TimePeriod:  domain.YearsPeriod(p.project.StartYear, p.project.EndYear),
		Tags:        domain.DefaultTags(),
		Groups:      []string{domain.WorldGroup},
		Subnational: false,
	}
	p.metadata.Apply(ds)
	ds.Notes = strings.NewReplacer("{pathway}", pathway, "{period}", period).Replace(ds.Notes)
	return ds, nil
}

// publish creates the dataset with the first resource attached, then every
// following resource individually. Local files are removed after each
// successful handoff.
func (p *Pipeline) publish(ctx context.Context, scenario string, ds *domain.Dataset, resources []domain.Resource) error {
	ds.Resources = []domain.Resource{resources[0]}
	created, err := p.stages.Catalog.CreateDataset(ctx, ds, domain.CreateOptions{
		RemoveAdditionalResources: true,
		HXLUpdate:                 false,
		UpdatedByScript:           domain.UpdatedByScript,
		Batch:                     p.batch,
	})
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", ds.Name, err)
	}
	ds.ID = created.ID
	firstID := ""
	if len(created.Resources) > 0 {
		firstID = created.Resources[0].ID
	}
	p.handedOff(ctx, scenario, ds, resources[0], firstID)

	for _, res := range resources[1:] {
		id, err := p.stages.Catalog.CreateResource(ctx, res, ds.ID)
		if err != nil {
			return fmt.Errorf("create resource %s: %w", res.Name, err)
		}
		p.handedOff(ctx, scenario, ds, res, id)
	}
	return nil
}

func (p *Pipeline) handedOff(ctx context.Context, scenario string, ds *domain.Dataset, res domain.Resource, id string) {
	p.metrics.ResourcesPublished.Inc()
	p.logger.Info("resource created", "scenario", scenario, "dataset", ds.Name, "resource", res.Name, "id", id)
	if res.FilePath != "" {
		if err := os.Remove(res.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("remove published file failed", "file", res.FilePath, "error", err)
		}
	}
	if p.stages.Notifier == nil {
		return
	}
	pub := domain.Publication{
		DatasetID:    ds.ID,
		DatasetName:  ds.Name,
		ResourceID:   id,
		ResourceName: res.Name,
		Scenario:     scenario,
		PublishedAt:  domain.Now().UTC(),
	}
	if err := p.stages.Notifier.Notify(ctx, pub); err != nil {
		p.logger.Warn("publication notify failed", "resource", res.Name, "error", err)
	}
}

func (p *Pipeline) bucketDir(scenario string, month int) string {
	return filepath.Join(p.workDir, filepath.FromSlash(domain.BucketKey(scenario, month)))
}
