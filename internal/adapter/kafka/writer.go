package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// DefaultTopic receives served predictions when no topic is configured.
const DefaultTopic = "air-quality-predictions"

// Writer produces prediction records to a Kafka topic.
// It implements prediction.PredictionSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the predictions topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Append serializes the records and publishes them in a single WriteMessages call.
func (w *Writer) Append(ctx context.Context, records []domain.PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write %s: %w", w.writer.Topic, err)
	}
	w.logger.Debug("predictions published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a PredictionRecord into a Kafka message keyed by
// target so one partition carries a target's history in order.
func serializeToMessage(r domain.PredictionRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Target),
		Value: data,
		Time:  r.Timestamp,
		Headers: []kafkago.Header{
			{Key: "model_version", Value: []byte(r.ModelVersion)},
			{Key: "target", Value: []byte(r.Target)},
			{Key: "predicted_value", Value: []byte(strconv.FormatFloat(r.Value, 'g', -1, 64))},
		},
	}, nil
}
