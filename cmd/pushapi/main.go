package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bp037/vc-incident-watch/internal/config"
	"github.com/Bp037/vc-incident-watch/internal/directory"
	"github.com/Bp037/vc-incident-watch/internal/feed"
	"github.com/Bp037/vc-incident-watch/internal/httpapi"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
	"github.com/Bp037/vc-incident-watch/pkg/shared"
)

func main() {
	// Parse command-line flags
	cfg := &config.APIConfig{}
	flag.StringVar(&cfg.Port, "port", shared.GetEnvOrDefault("PORT", "8080"), "HTTP server port")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.Parse()

	cfg.VapidPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.VapidPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.VapidSubject = os.Getenv("VAPID_SUBJECT")
	cfg.PushTestSecret = os.Getenv("PUSH_TEST_SECRET")

	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "DEBUG" || os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting push API",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
		"vapid_subject", cfg.VapidSubject,
		"vapid_private_key", shared.MaskSecret(cfg.VapidPrivateKey),
		"test_endpoint_enabled", cfg.PushTestSecret != "",
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Push transport for the test endpoint
	credential, err := webpush.NewCredential(cfg.VapidPublicKey, cfg.VapidPrivateKey, cfg.VapidSubject)
	if err != nil {
		slog.Error("Invalid VAPID credential", "error", err)
		os.Exit(1)
	}
	transport := webpush.NewClient(credential)

	store := directory.NewStore(redisClient)
	cache := feed.NewCache(redisClient)
	handlers := httpapi.NewHandlers(store, transport, cache, cfg.VapidPublicKey, cfg.PushTestSecret)
	server := httpapi.NewServer(cfg.Port, handlers)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
		cancel()
	}()

	slog.Info("Push API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("Push API stopped")
}
