// Package producer provides Kafka producer functionality for the
// incidents topic.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/pkg/kafkautil"
)

// Producer wraps a Kafka writer and provides a simple interface for
// publishing incident batches.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer with the specified brokers
// and topic. The producer is configured for at-least-once delivery with
// synchronous writes.
func NewProducer(brokers, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	// Try to create the topic if it doesn't exist (best effort).
	createTopicIfNotExists(brokerList[0], topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne, // At-least-once semantics (waits for leader ack)
		Async:        false,            // Synchronous writes for reliability and error handling
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}, nil
}

// Publish serializes an incident batch to JSON and publishes it to
// Kafka, keyed by the fetch timestamp.
func (p *Producer) Publish(ctx context.Context, batch *events.IncidentBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal incident batch: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(batch.FetchedAt),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish incident batch: %w", err)
	}

	slog.Debug("Published incident batch",
		"topic", p.topic,
		"fetched_at", batch.FetchedAt,
		"incidents", len(batch.Incidents),
	)
	return nil
}

// Close gracefully closes the Kafka writer.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	return p.writer.Close()
}

// createTopicIfNotExists attempts to create the topic with a single
// partition. Failures are logged and ignored; the broker may have
// auto-creation enabled or the topic may already exist.
func createTopicIfNotExists(broker, topic string) {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		slog.Warn("Could not dial broker to create topic", "broker", broker, "error", err)
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		slog.Warn("Could not resolve controller", "error", err)
		return
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		slog.Warn("Could not dial controller", "error", err)
		return
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		slog.Debug("Topic creation skipped", "topic", topic, "error", err)
	}
}
