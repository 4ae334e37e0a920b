package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
)

// batchSize caps the messages handed to a single WriteMessages call.
const batchSize = 500

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes every consolidated turbine record to a Kafka topic, keyed
// by facility code. It implements pipeline.Sink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Deliver serializes the consolidated table row by row and writes it in
// batches. Records sharing a CEG always land on the same partition.
func (w *Writer) Deliver(ctx context.Context, d domain.Delivery) error {
	if d.Table == nil || d.Table.Len() == 0 {
		return nil
	}
	batch := make([]kafkago.Message, 0, min(batchSize, d.Table.Len()))
	sent := 0
	for _, row := range d.Table.Rows {
		msg, err := serializeToMessage(d, d.Table.Columns, row)
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) == batchSize {
			if err := w.writer.WriteMessages(ctx, batch...); err != nil {
				return fmt.Errorf("%w: write records: %v", domain.ErrConnection, err)
			}
			sent += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("%w: write records: %v", domain.ErrConnection, err)
		}
		sent += len(batch)
	}
	w.logger.Debug("records published", "records", sent, "run_id", d.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one table row into a Kafka message whose value
// is a JSON object in column order.
func serializeToMessage(d domain.Delivery, columns []string, row []any) (kafkago.Message, error) {
	var record domain.Attributes
	for i, col := range columns {
		record.Set(col, row[i])
	}
	data, err := record.MarshalJSON()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize turbine record: %w", err)
	}

	key, _ := record.Get(domain.FieldFacility)
	return kafkago.Message{
		Key:   []byte(domain.FormatCell(key)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(d.RunID)},
			{Key: "completed_at", Value: []byte(d.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
