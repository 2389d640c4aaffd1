package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Bp037/vc-incident-watch/internal/consumer"
	"github.com/Bp037/vc-incident-watch/internal/dispatcher"
	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/pkg/metrics"
)

// processBatches reads incident batches from Kafka and runs a dispatch
// pass for each one, committing the offset only after the pass completes.
// A failed pass is not committed; the batch is redelivered and the dedup
// ledger keeps redelivery from re-notifying incidents that already went
// through a pass.
func processBatches(ctx context.Context, kafkaConsumer *consumer.Consumer, disp *dispatcher.Dispatcher, m metrics.Recorder) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Batch processing loop stopped")
			return nil
		default:
			batch, msg, err := kafkaConsumer.ReadBatch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					slog.Info("Batch processing loop stopped")
					return nil
				}
				slog.Error("Failed to read incident batch", "error", err)
				m.RecordError()
				// A batch that cannot even be decoded will never succeed;
				// commit it so the consumer does not wedge on a poison message.
				if msg != nil {
					commitOffset(ctx, kafkaConsumer, msg)
				}
				continue
			}
			m.RecordBatch()
			processOne(ctx, kafkaConsumer, disp, m, batch.Incidents, msg, batch.FetchedAt)
		}
	}
}

// processOne runs a single dispatch pass and commits the offset on success.
func processOne(ctx context.Context, kafkaConsumer *consumer.Consumer, disp *dispatcher.Dispatcher, m metrics.Recorder, incidents []events.Incident, msg *kafka.Message, fetchedAt string) {
	passID := uuid.New().String()
	startTime := time.Now()

	slog.Debug("Starting dispatch pass",
		"pass_id", passID,
		"fetched_at", fetchedAt,
		"incidents", len(incidents),
	)

	summary, err := disp.Dispatch(ctx, incidents)
	if err != nil {
		slog.Error("Dispatch pass failed",
			"pass_id", passID,
			"error", err,
		)
		m.RecordError()
		// Not committed: the batch is redelivered after restart.
		return
	}

	m.RecordEvents(uint64(len(incidents)))
	m.RecordDispatch(uint64(summary.Notified), uint64(summary.Failed), uint64(summary.Skipped), uint64(summary.Removed))

	slog.Info("Dispatch pass complete",
		"pass_id", passID,
		"duration", time.Since(startTime),
		"incidents", len(incidents),
		"new_events", summary.NewEvents,
		"notified", summary.Notified,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"removed", summary.Removed,
	)

	commitOffset(ctx, kafkaConsumer, msg)
}

// commitOffset commits the Kafka offset for the given message.
func commitOffset(ctx context.Context, c *consumer.Consumer, msg *kafka.Message) {
	if err := c.CommitMessage(ctx, msg); err != nil {
		slog.Error("Failed to commit offset", "error", err)
	}
}
