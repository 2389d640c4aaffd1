// Package config provides configuration parsing and validation for the
// relay binaries.
package config

import (
	"fmt"
	"time"
)

// NotifierConfig holds all configuration parameters for the notifier.
type NotifierConfig struct {
	KafkaBrokers    string
	IncidentsTopic  string
	ConsumerGroupID string
	RedisAddr       string
	VapidPublicKey  string
	VapidPrivateKey string
	VapidSubject    string
	SentRetention   time.Duration
	Workers         int
}

// Validate checks that all required configuration fields are set and
// have valid values. Returns an error if validation fails, nil otherwise.
func (c *NotifierConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.IncidentsTopic == "" {
		return fmt.Errorf("incidents-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.VapidPublicKey == "" || c.VapidPrivateKey == "" || c.VapidSubject == "" {
		return fmt.Errorf("VAPID_PUBLIC_KEY, VAPID_PRIVATE_KEY and VAPID_SUBJECT must be set")
	}
	if c.SentRetention <= 0 {
		return fmt.Errorf("sent-retention must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// PollerConfig holds all configuration parameters for the feed poller.
type PollerConfig struct {
	KafkaBrokers   string
	IncidentsTopic string
	RedisAddr      string
	FeedURL        string
	PollInterval   time.Duration
}

// Validate checks that all required configuration fields are set and
// have valid values.
func (c *PollerConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.IncidentsTopic == "" {
		return fmt.Errorf("incidents-topic cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.FeedURL == "" {
		return fmt.Errorf("feed-url cannot be empty")
	}
	if c.PollInterval < 10*time.Second {
		return fmt.Errorf("poll-interval must be at least 10s")
	}
	return nil
}

// APIConfig holds all configuration parameters for the push API.
type APIConfig struct {
	Port            string
	RedisAddr       string
	VapidPublicKey  string
	VapidPrivateKey string
	VapidSubject    string
	PushTestSecret  string
}

// Validate checks that all required configuration fields are set and
// have valid values. The test secret is optional; when empty the test
// endpoint is disabled.
func (c *APIConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.VapidPublicKey == "" || c.VapidPrivateKey == "" || c.VapidSubject == "" {
		return fmt.Errorf("VAPID_PUBLIC_KEY, VAPID_PRIVATE_KEY and VAPID_SUBJECT must be set")
	}
	return nil
}
