// Package directory provides the persisted subscription store backed by
// Redis. One record per push endpoint, keyed by a digest of the endpoint
// URL so the raw URL (which embeds a capability token) never appears in
// key listings.
package directory

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
)

// subKeyPrefix namespaces subscription records. It must never collide
// with the dedup ledger's prefix.
const subKeyPrefix = "push_sub:"

// scanBatchSize is the COUNT hint for Redis SCAN during listing.
const scanBatchSize = 100

// Preferences is the fixed-shape set of per-category notification flags.
type Preferences struct {
	Fire    bool `json:"fire"`
	Traffic bool `json:"traffic"`
	Medical bool `json:"medical"`
	Hazmat  bool `json:"hazmat"`
}

// DefaultPreferences returns the opt-in default: every recognized
// category enabled.
func DefaultPreferences() Preferences {
	return Preferences{Fire: true, Traffic: true, Medical: true, Hazmat: true}
}

// Wants reports whether these preferences opt in to the given category.
func (p Preferences) Wants(category events.Category) bool {
	switch category {
	case events.CategoryFire:
		return p.Fire
	case events.CategoryTrafficCollision:
		return p.Traffic
	case events.CategoryMedical:
		return p.Medical
	case events.CategoryHazmat:
		return p.Hazmat
	default:
		return false
	}
}

// PreferenceFlags carries optional per-category flags as supplied by a
// subscribe request. Absent flags default to enabled.
type PreferenceFlags struct {
	Fire    *bool `json:"fire"`
	Traffic *bool `json:"traffic"`
	Medical *bool `json:"medical"`
	Hazmat  *bool `json:"hazmat"`
}

// Normalize resolves optional flags into concrete preferences, defaulting
// each absent flag to true.
func (f PreferenceFlags) Normalize() Preferences {
	return Preferences{
		Fire:    f.Fire == nil || *f.Fire,
		Traffic: f.Traffic == nil || *f.Traffic,
		Medical: f.Medical == nil || *f.Medical,
		Hazmat:  f.Hazmat == nil || *f.Hazmat,
	}
}

// Subscription is one registered delivery target. The endpoint is the
// natural unique key; re-subscribing with the same endpoint replaces the
// record in place.
type Subscription struct {
	Endpoint  string       `json:"endpoint"`
	Keys      webpush.Keys `json:"keys"`
	Prefs     Preferences  `json:"prefs"`
	DeviceID  string       `json:"device_id,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store persists subscriptions in Redis.
//
// Read-your-writes is not guaranteed across concurrent writers; callers
// treat one List result as an authoritative snapshot for a single
// dispatch pass.
type Store struct {
	redis *redis.Client
}

// NewStore creates a subscription store on the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

// SubscriptionKey returns the Redis key for an endpoint.
func SubscriptionKey(endpoint string) string {
	digest := sha256.Sum256([]byte(endpoint))
	return subKeyPrefix + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Put creates or replaces the record for the subscription's endpoint.
func (s *Store) Put(ctx context.Context, sub Subscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("subscription endpoint is required")
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := s.redis.Set(ctx, SubscriptionKey(sub.Endpoint), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

// List returns every stored subscription as a fully materialized slice.
// Listing paginates internally via SCAN. Records deleted between the
// scan and the read are skipped; corrupt records are skipped with a
// warning rather than failing the listing.
func (s *Store) List(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription

	iter := s.redis.Scan(ctx, 0, subKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read subscription %s: %w", key, err)
		}

		var sub Subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			slog.Warn("Skipping corrupt subscription record", "key", key, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

// DeleteByEndpoint removes the record for an endpoint. Deleting an
// already-deleted endpoint is a no-op.
func (s *Store) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if err := s.redis.Del(ctx, SubscriptionKey(endpoint)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// DeleteByDevice removes every subscription registered with the given
// device identifier and returns how many were removed.
func (s *Store) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	if deviceID == "" {
		return 0, nil
	}

	subs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, sub := range subs {
		if sub.DeviceID != deviceID {
			continue
		}
		if err := s.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
