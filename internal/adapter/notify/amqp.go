// Package notify announces fresh consolidated outputs on a RabbitMQ queue.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/victor-cakess/hometown/internal/config"
	"github.com/victor-cakess/hometown/internal/domain"
)

// Message is the JSON body published for each consolidated output.
type Message struct {
	RunID       string         `json:"run_id"`
	File        string         `json:"file"`
	Path        string         `json:"path"`
	Records     int            `json:"records"`
	CompletedAt time.Time      `json:"completed_at"`
	Summary     domain.Summary `json:"summary"`
}

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Close() error
}

type dialFunc func(url string) (connection, channel, error)

func dialAMQP(url string) (connection, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Notifier publishes one persistent message per delivery to a durable queue.
// Runs are infrequent, so it dials per delivery instead of holding a
// connection open. It implements pipeline.Sink.
type Notifier struct {
	url    string
	queue  string
	dial   dialFunc
	logger *slog.Logger
}

// NewNotifier creates a notifier for the configured broker and queue.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	return &Notifier{url: cfg.AMQPURL, queue: cfg.AMQPQueue, dial: dialAMQP, logger: logger}
}

func (n *Notifier) Name() string { return "amqp" }

// Deliver publishes the delivery's announcement.
func (n *Notifier) Deliver(ctx context.Context, d domain.Delivery) error {
	body, err := json.Marshal(Message{
		RunID:       d.RunID,
		File:        filepath.Base(d.Path),
		Path:        d.Path,
		Records:     d.Summary.Records,
		CompletedAt: d.CompletedAt.UTC(),
		Summary:     d.Summary,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	conn, ch, err := n.dial(n.url)
	if err != nil {
		return fmt.Errorf("%w: dial broker: %v", domain.ErrConnection, err)
	}
	defer conn.Close()
	defer ch.Close()

	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare queue %s: %v", domain.ErrConnection, n.queue, err)
	}
	err = ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.RunID,
		Timestamp:    d.CompletedAt.UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrConnection, n.queue, err)
	}
	n.logger.Debug("consolidation announced", "queue", n.queue, "run_id", d.RunID)
	return nil
}
