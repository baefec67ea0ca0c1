// Package kafka publishes injection events to a Kafka topic as JSON messages
// keyed by request host, so events for one site stay ordered on a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/splice/pkg/eventstream"
)

const defaultWriteTimeout = 10 * time.Second

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	// Brokers is a comma separated list of host:port broker addresses.
	Brokers string

	// Topic receives one message per injection event.
	Topic string

	// WriteTimeout bounds each publish. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher writes injection events to Kafka.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Kafka publisher. Connections are established lazily
// on the first publish.
func NewPublisher(c Config) (*Publisher, error) {
	brokers := splitBrokers(c.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(w, c), nil
}

func newPublisher(w messageWriter, c Config) *Publisher {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Publisher{
		writer:  w,
		timeout: timeout,
		logger:  logger,
	}
}

// PublishInjection encodes event as JSON and writes it to the topic.
func (p *Publisher) PublishInjection(ctx context.Context, event *eventstream.InjectionEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding injection event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.Request.Host),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing injection event %s: %w", event.EventID, err)
	}

	p.logger.Debug("injection event published",
		"event_id", event.EventID,
		"host", event.Request.Host,
	)

	return nil
}

// Close flushes pending messages and closes broker connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
