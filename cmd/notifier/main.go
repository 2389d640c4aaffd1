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
	"github.com/Bp037/vc-incident-watch/internal/consumer"
	"github.com/Bp037/vc-incident-watch/internal/directory"
	"github.com/Bp037/vc-incident-watch/internal/dispatcher"
	"github.com/Bp037/vc-incident-watch/internal/ledger"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
	"github.com/Bp037/vc-incident-watch/pkg/metrics"
	"github.com/Bp037/vc-incident-watch/pkg/shared"
)

func main() {
	// Parse command-line flags
	cfg := &config.NotifierConfig{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.IncidentsTopic, "incidents-topic", shared.GetEnvOrDefault("INCIDENTS_TOPIC", "incidents.new"), "Kafka topic for incident batches")
	flag.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", shared.GetEnvOrDefault("CONSUMER_GROUP_ID", "notifier-group"), "Kafka consumer group ID")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.DurationVar(&cfg.SentRetention, "sent-retention", 72*time.Hour, "How long dedup markers are retained")
	flag.IntVar(&cfg.Workers, "workers", 4, "Concurrent deliveries per incident")
	flag.Parse()

	cfg.VapidPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.VapidPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.VapidSubject = os.Getenv("VAPID_SUBJECT")

	// Set up structured logging
	// Allow DEBUG level via environment variable for troubleshooting
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting notifier service",
		"kafka_brokers", cfg.KafkaBrokers,
		"incidents_topic", cfg.IncidentsTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"redis_addr", cfg.RedisAddr,
		"vapid_subject", cfg.VapidSubject,
		"vapid_private_key", shared.MaskSecret(cfg.VapidPrivateKey),
		"sent_retention", cfg.SentRetention,
		"workers", cfg.Workers,
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

	// Initialize Kafka consumer
	slog.Info("Connecting to Kafka consumer", "topic", cfg.IncidentsTopic)
	kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.IncidentsTopic, cfg.ConsumerGroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaConsumer.Close()
	slog.Info("Successfully connected to Kafka consumer")

	// Initialize push transport with the VAPID credential
	credential, err := webpush.NewCredential(cfg.VapidPublicKey, cfg.VapidPrivateKey, cfg.VapidSubject)
	if err != nil {
		slog.Error("Invalid VAPID credential", "error", err)
		os.Exit(1)
	}
	transport := webpush.NewClient(credential)

	// Wire the dispatcher: directory, dedup ledger, push transport
	subDirectory := directory.NewStore(redisClient)
	sentLedger := ledger.New(redisClient, cfg.SentRetention)
	disp := dispatcher.New(subDirectory, sentLedger, transport, dispatcher.WithWorkers(cfg.Workers))

	// Start metrics collection
	collector := metrics.NewCollector("notifier", redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	// Main processing loop
	slog.Info("Starting incident batch processing loop")
	if err := processBatches(ctx, kafkaConsumer, disp, collector); err != nil {
		slog.Error("Batch processing failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Notifier service stopped")
}
