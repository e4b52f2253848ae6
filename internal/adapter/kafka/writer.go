package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/chc-cmip6-etl/internal/config"
	"github.com/couchcryptid/chc-cmip6-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier announces created catalog resources on a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured publication topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one publication event keyed by dataset name, so all
// resources of a dataset land on the same partition in creation order.
func (n *Notifier) Notify(ctx context.Context, pub domain.Publication) error {
	msg, err := serializeToMessage(pub)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write publication %s: %w", pub.ResourceName, err)
	}
	n.logger.Debug("publication sent", "dataset", pub.DatasetName, "resource", pub.ResourceName)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a Publication into a Kafka message.
func serializeToMessage(pub domain.Publication) (kafkago.Message, error) {
	data, err := json.Marshal(pub)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize publication: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(pub.DatasetName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scenario", Value: []byte(pub.Scenario)},
			{Key: "published_at", Value: []byte(pub.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
