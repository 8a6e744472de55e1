package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sensor-model-pipeline/internal/config"
	"github.com/couchcryptid/sensor-model-pipeline/internal/model"
)

// EventType labels every message this package produces.
const EventType = "model_published"

// ModelPublishedEvent announces a newly published artifact.
type ModelPublishedEvent struct {
	EventID     string        `json:"event_id"`
	Model       string        `json:"model"`
	Version     string        `json:"version"`
	Path        string        `json:"path"`
	TrainedAt   time.Time     `json:"trained_at"`
	PublishedAt time.Time     `json:"published_at"`
	Metrics     model.Metrics `json:"metrics"`
}

// Notifier produces model-published events to a Kafka topic.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	path   string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured model topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaModelTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &Notifier{
		writer: w,
		path:   cfg.ArtifactPath,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// NotifyPublished writes one event keyed by model name, so all versions of a
// model land on the same partition in publish order.
func (n *Notifier) NotifyPublished(ctx context.Context, artifact *model.Artifact) error {
	event := newEvent(artifact, n.path, n.clock.Now())
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", EventType, err)
	}
	n.logger.Debug("model published event sent", "topic", n.writer.Topic, "version", event.Version)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

func newEvent(artifact *model.Artifact, path string, now time.Time) ModelPublishedEvent {
	return ModelPublishedEvent{
		EventID:     uuid.NewString(),
		Model:       artifact.Name,
		Version:     artifact.Version,
		Path:        path,
		TrainedAt:   artifact.TrainedAt,
		PublishedAt: now.UTC().Truncate(time.Second),
		Metrics:     artifact.Metrics,
	}
}

// serializeToMessage marshals a ModelPublishedEvent into a Kafka message.
func serializeToMessage(event ModelPublishedEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s event: %w", EventType, err)
	}
	return kafkago.Message{
		Key:   []byte(event.Model),
		Value: data,
		Time:  event.PublishedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "model_version", Value: []byte(event.Version)},
			{Key: "published_at", Value: []byte(event.PublishedAt.Format(time.RFC3339))},
			{Key: "rmse", Value: []byte(strconv.FormatFloat(event.Metrics.RMSE, 'g', -1, 64))},
		},
	}, nil
}
