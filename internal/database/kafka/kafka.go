package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"finsight/internal/config"
)

var (
	publisher *Publisher
	once      sync.Once
)

// IngestionEvent describes a completed balance-sheet import. Consumers
// use it to rebuild downstream caches and audit trails.
type IngestionEvent struct {
	CompanyID uint      `json:"company_id"`
	Year      int       `json:"year"`
	Source    string    `json:"source"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes ingestion events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// GetPublisher builds the process-wide Kafka writer once.
func GetPublisher(cfg *config.KafkaConfig) *Publisher {
	once.Do(func() {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		}
		publisher = &Publisher{writer: writer}
	})
	return publisher
}

// Publish sends one ingestion event, keyed by company so events for a
// company stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, event IngestionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding ingestion event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("company-%d", event.CompanyID)),
		Value: payload,
	})
}

// Close flushes pending messages and releases the connection.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
