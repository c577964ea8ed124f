// Package kafka publishes per-second vibration results to a Kafka topic.
package kafka

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes per-second results to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter creates a Kafka producer for the configured result topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Publish serializes the results and writes them in chunks of BATCH_SIZE.
// Messages are keyed by file name so a file's results stay in order on one
// partition.
func (w *Writer) Publish(ctx context.Context, fileName string, results []domain.ResultRecord) error {
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

	size := w.batchSize
	if size <= 0 {
		size = len(msgs)
	}
	for lo := 0; lo < len(msgs); lo += size {
		hi := min(lo+size, len(msgs))
		if err := w.writer.WriteMessages(ctx, msgs[lo:hi]...); err != nil {
			return err
		}
	}
	w.logger.Debug("results published", "sink", w.Name(), "file", fileName, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a result record into a Kafka message.
func serializeToMessage(r domain.ResultRecord) (kafkago.Message, error) {
	data, err := domain.SerializeResult(r)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(r.FileName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "epoch_seconds", Value: []byte(strconv.FormatInt(int64(r.Key), 10))},
			{Key: "processed_at", Value: []byte(r.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
