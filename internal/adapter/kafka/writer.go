package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/glacier-melt-service/internal/config"
	"github.com/couchcryptid/glacier-melt-service/internal/domain"
)

// Writer produces simulation results to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes results in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, results []domain.SimulationEnvelope) error {
	if len(results) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(results))
	for i := range results {
		msg, err := serializeToMessage(results[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Close flushes pending writes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a result keyed by glacier so that results for
// one glacier stay ordered on a partition.
func serializeToMessage(env domain.SimulationEnvelope) (kafkago.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize simulation result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(env.Result.Glacier.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "job_id", Value: []byte(env.JobID)},
			{Key: "run_id", Value: []byte(env.RunID)},
			{Key: "data_quality", Value: []byte(env.Result.DataQuality)},
			{Key: "processed_at", Value: []byte(env.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
