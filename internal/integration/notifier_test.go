//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/chc-cmip6-etl/internal/adapter/kafka"
	"github.com/couchcryptid/chc-cmip6-etl/internal/checkpoint"
	"github.com/couchcryptid/chc-cmip6-etl/internal/config"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	"github.com/couchcryptid/chc-cmip6-etl/internal/observability"
	"github.com/couchcryptid/chc-cmip6-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

const testTopic = "test-publications"

type oneRasterSyncer struct{}

func (oneRasterSyncer) Sync(_ context.Context, source, localDir, _ string) ([]string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, err
	}
	name := "Daily_Tmax_" + filepath.Base(source) + ".tif"
	return []string{name}, os.WriteFile(filepath.Join(localDir, name), []byte("tif"), 0o644)
}

type touchPackager struct{}

func (touchPackager) Package(_ context.Context, _, archivePath string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(archivePath, []byte("PK"), 0o644)
}

type countingCatalog struct{ n int }

func (c *countingCatalog) CreateDataset(_ context.Context, d *domain.Dataset, _ domain.CreateOptions) (*domain.Dataset, error) {
	created := *d
	created.ID = "ds-1"
	created.Resources = []domain.Resource{d.Resources[0]}
	c.n++
	created.Resources[0].ID = fmt.Sprintf("res-%d", c.n)
	return &created, nil
}

func (c *countingCatalog) CreateResource(_ context.Context, _ domain.Resource, _ string) (string, error) {
	c.n++
	return fmt.Sprintf("res-%d", c.n), nil
}

// TestPipelinePublishesToKafka runs a geotiff scenario with the Kafka notifier
// and reads one publication per created resource back from the topic.
func TestPipelinePublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	notifier := kafka.NewNotifier(cfg, discardLogger())
	t.Cleanup(func() { _ = notifier.Close() })

	project := config.DefaultProject()
	project.BaseURL = "https://x"
	project.BaseFile = "Daily_Tmax_{product}_{month}"
	project.Products = []string{"cnt_Tmaxgt30C"}
	project.Scenarios = []string{"2030_SSP245"}
	project.StartYear, project.EndYear = 2030, 2030

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })

	p := pipeline.New(pipeline.Stages{
		Syncer:      oneRasterSyncer{},
		Checkpoints: checkpoint.New(bucket),
		Packager:    touchPackager{},
		Catalog:     &countingCatalog{},
		Notifier:    notifier,
	}, pipeline.Options{Project: project, WorkDir: t.TempDir(), Batch: "it"},
		discardLogger(), observability.NewMetricsForTesting())

	require.NoError(t, p.RunAll(ctx))
	require.Equal(t, domain.StateDone, p.State("2030_SSP245"))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	for month := 1; month <= 12; month++ {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read publication %d", month)

		var pub domain.Publication
		require.NoError(t, json.Unmarshal(msg.Value, &pub))
		assert.Equal(t, "chc_ucsb_tmax_2030_ssp245", string(msg.Key))
		assert.Equal(t, fmt.Sprintf("Daily_Tmax_cnt_Tmaxgt30C_%02d", month), pub.ResourceName)
		assert.Equal(t, fmt.Sprintf("res-%d", month), pub.ResourceID)
		assert.Equal(t, "ds-1", pub.DatasetID)
	}
}
