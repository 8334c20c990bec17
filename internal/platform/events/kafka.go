package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	domain "github.com/psicolfis/checkout-api/internal/domain"
)

const defaultBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes transaction status changes to a Kafka topic keyed by session id,
// so every change for one session lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	newID  func() string
}

// KafkaSettings configures the underlying writer.
type KafkaSettings struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchTimeout time.Duration
	ErrorLogger  kafka.Logger
}

// NewKafkaPublisher builds a synchronous writer with hash balancing and all-replica acks.
// Each publish is flushed on its own so a status transition never waits for a batch to fill.
func NewKafkaPublisher(settings KafkaSettings) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(settings.Brokers))
	for _, broker := range settings.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if strings.TrimSpace(settings.Topic) == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	writeTimeout := settings.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	batchTimeout := settings.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        settings.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: writeTimeout,
		BatchSize:    1,
		BatchTimeout: batchTimeout,
		ErrorLogger:  settings.ErrorLogger,
	}
	return newKafkaPublisher(writer), nil
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, newID: defaultID}
}

// PublishStatusChange writes one message and waits for the broker acknowledgement.
func (p *KafkaPublisher) PublishStatusChange(ctx context.Context, change domain.TransactionStatusChange) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka publisher: not initialised")
	}
	event := newStatusChanged(change, p.newID)
	data, err := encode(event)
	if err != nil {
		return err
	}

	attrs := attributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventId", "eventType", "sessionId", "status"} {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(attrs[key])})
	}

	msg := kafka.Message{
		Key:     []byte(event.SessionID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
