// Package ledger provides the per-event idempotency markers that prevent
// re-notification of an already-handled incident.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sentKeyPrefix namespaces processed-event markers. It must never
// collide with the subscription directory's prefix.
const sentKeyPrefix = "push_sent:"

// DefaultRetention bounds how long a marker lives. After expiry the
// event id may legally reprocess if ever re-observed; feed ids are
// stable and real incidents do not recur within this window.
const DefaultRetention = 72 * time.Hour

// Ledger records which event ids have already been through a fan-out
// pass. Markers are created once and never mutated; Redis expiry
// enforces the retention policy.
type Ledger struct {
	redis     *redis.Client
	retention time.Duration
}

// New creates a ledger with the given retention. A non-positive
// retention falls back to DefaultRetention.
func New(client *redis.Client, retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Ledger{redis: client, retention: retention}
}

// AlreadyProcessed reports whether a fan-out pass has been recorded for
// the event id.
func (l *Ledger) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := l.redis.Exists(ctx, sentKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed writes the idempotency marker for an event id. The write
// is an atomic create-if-absent, so marking the same id twice is
// harmless and an existing marker's expiry is left untouched.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID string) error {
	if err := l.redis.SetNX(ctx, sentKeyPrefix+eventID, "1", l.retention).Err(); err != nil {
		return fmt.Errorf("failed to write processed marker: %w", err)
	}
	return nil
}
