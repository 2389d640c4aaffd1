// Package metrics provides a small metrics collection and reporting system.
// Binaries write periodic snapshots to Redis for centralized access.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for service metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot holds metrics for a single binary.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`

	// Counters (monotonically increasing since start)
	BatchesReceived uint64 `json:"batches_received"`
	EventsProcessed uint64 `json:"events_processed"`
	Notified        uint64 `json:"notified"`
	Failed          uint64 `json:"failed"`
	Skipped         uint64 `json:"skipped"`
	Removed         uint64 `json:"removed"`
	Errors          uint64 `json:"errors"`
}

// Recorder is the write-side interface, satisfied by Collector and by
// test fakes.
type Recorder interface {
	RecordBatch()
	RecordEvents(n uint64)
	RecordDispatch(notified, failed, skipped, removed uint64)
	RecordError()
}

// Collector collects counters and periodically reports them to Redis.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	batchesReceived atomic.Uint64
	eventsProcessed atomic.Uint64
	notified        atomic.Uint64
	failed          atomic.Uint64
	skipped         atomic.Uint64
	removed         atomic.Uint64
	errors          atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector for a binary.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.write(context.Background()) // Final write
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordBatch increments the incident batches received counter.
func (c *Collector) RecordBatch() {
	c.batchesReceived.Add(1)
}

// RecordEvents adds to the events processed counter.
func (c *Collector) RecordEvents(n uint64) {
	c.eventsProcessed.Add(n)
}

// RecordDispatch adds the per-pass dispatch counters.
func (c *Collector) RecordDispatch(notified, failed, skipped, removed uint64) {
	c.notified.Add(notified)
	c.failed.Add(failed)
	c.skipped.Add(skipped)
	c.removed.Add(removed)
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.errors.Add(1)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	return &Snapshot{
		ServiceName:     c.serviceName,
		StartedAt:       c.startedAt,
		LastUpdated:     time.Now().UTC(),
		BatchesReceived: c.batchesReceived.Load(),
		EventsProcessed: c.eventsProcessed.Load(),
		Notified:        c.notified.Load(),
		Failed:          c.failed.Load(),
		Skipped:         c.skipped.Load(),
		Removed:         c.removed.Load(),
		Errors:          c.errors.Load(),
	}
}

// write writes current metrics to Redis.
func (c *Collector) write(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// NoOp is a Recorder that discards all measurements. Used where metrics
// are optional.
type NoOp struct{}

func (NoOp) RecordBatch()                           {}
func (NoOp) RecordEvents(uint64)                    {}
func (NoOp) RecordDispatch(_, _, _, _ uint64)       {}
func (NoOp) RecordError()                           {}
