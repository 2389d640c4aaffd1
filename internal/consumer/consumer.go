// Package consumer provides Kafka consumer functionality for the
// incidents topic.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/pkg/kafkautil"
)

// Consumer wraps a Kafka reader and provides a simple interface for
// consuming incident batches.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers,
// topic, and group ID. The consumer is configured for at-least-once
// delivery; offsets are committed explicitly after a batch is dispatched.
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadBatch reads the next message from Kafka and deserializes it as an
// IncidentBatch. Returns the raw message alongside the batch so the
// caller can commit the offset after dispatch.
func (c *Consumer) ReadBatch(ctx context.Context) (*events.IncidentBatch, *kafka.Message, error) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	var batch events.IncidentBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return nil, &msg, fmt.Errorf("failed to unmarshal incident batch: %w", err)
	}

	return &batch, &msg, nil
}

// CommitMessage commits the offset for the given message. This should be
// called after the batch has been dispatched.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	return nil
}
