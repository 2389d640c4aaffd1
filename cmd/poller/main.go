package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bp037/vc-incident-watch/internal/config"
	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/feed"
	"github.com/Bp037/vc-incident-watch/internal/producer"
	"github.com/Bp037/vc-incident-watch/pkg/metrics"
	"github.com/Bp037/vc-incident-watch/pkg/shared"
)

func main() {
	// Parse command-line flags
	cfg := &config.PollerConfig{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.IncidentsTopic, "incidents-topic", shared.GetEnvOrDefault("INCIDENTS_TOPIC", "incidents.new"), "Kafka topic for incident batches")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&cfg.FeedURL, "feed-url", shared.GetEnvOrDefault("FEED_URL", feed.DefaultURL), "Incident feed URL")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 60*time.Second, "How often to poll the feed")
	flag.Parse()

	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting feed poller",
		"kafka_brokers", cfg.KafkaBrokers,
		"incidents_topic", cfg.IncidentsTopic,
		"redis_addr", cfg.RedisAddr,
		"feed_url", cfg.FeedURL,
		"poll_interval", cfg.PollInterval,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize Redis connection
	slog.Info("Connecting to Redis")
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis' or ensure Redis is running")
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	// Initialize Kafka producer
	slog.Info("Connecting to Kafka producer", "topic", cfg.IncidentsTopic)
	kafkaProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.IncidentsTopic)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaProducer.Close()
	slog.Info("Successfully connected to Kafka producer")

	feedClient := feed.NewClient(cfg.FeedURL)
	feedCache := feed.NewCache(redisClient)

	// Start metrics collection
	collector := metrics.NewCollector("poller", redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	// Main polling loop
	slog.Info("Starting polling loop")
	runPollLoop(ctx, cfg.PollInterval, feedClient, feedCache, kafkaProducer, collector)

	slog.Info("Feed poller stopped")
}

// runPollLoop polls the feed on a fixed interval until the context is
// cancelled. The first poll happens immediately.
func runPollLoop(ctx context.Context, interval time.Duration, client *feed.Client, cache *feed.Cache, kafkaProducer *producer.Producer, m metrics.Recorder) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pollOnce(ctx, client, cache, kafkaProducer, m)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollOnce(ctx, client, cache, kafkaProducer, m)
		}
	}
}

// pollOnce fetches the feed, caches the snapshot, and publishes the batch.
// Failures are logged and the next tick retries; the poller never exits on
// a transient upstream error.
func pollOnce(ctx context.Context, client *feed.Client, cache *feed.Cache, kafkaProducer *producer.Producer, m metrics.Recorder) {
	fetchedAt := time.Now().UTC()

	incidents, err := client.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Feed poll failed", "error", err)
		m.RecordError()
		return
	}
	m.RecordBatch()
	m.RecordEvents(uint64(len(incidents)))

	if err := cache.Store(ctx, incidents, fetchedAt); err != nil {
		slog.Error("Failed to cache feed snapshot", "error", err)
		m.RecordError()
		// Publishing still proceeds; the cache is a convenience copy.
	}

	batch := &events.IncidentBatch{
		SchemaVersion: events.SchemaVersion,
		FetchedAt:     fetchedAt.Format(time.RFC3339),
		Incidents:     incidents,
	}
	if err := kafkaProducer.Publish(ctx, batch); err != nil {
		slog.Error("Failed to publish incident batch", "error", err)
		m.RecordError()
		return
	}

	slog.Info("Published incident batch",
		"incidents", len(incidents),
		"fetched_at", batch.FetchedAt,
	)
}
