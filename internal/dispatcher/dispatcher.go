// Package dispatcher orchestrates the encrypted push fan-out: for each
// new incident it classifies, filters subscribers by preference, drives
// the push transport for every match, and records the idempotency marker.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Bp037/vc-incident-watch/internal/directory"
	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
)

// defaultWorkerCount bounds concurrent deliveries per event. Deliveries
// to distinct subscriptions have no ordering requirement.
const defaultWorkerCount = 4

// SubscriptionDirectory is the directory surface the dispatcher needs:
// a full listing and eviction of permanently invalid endpoints.
type SubscriptionDirectory interface {
	List(ctx context.Context) ([]directory.Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Ledger records which event ids have already been through a pass.
type Ledger interface {
	AlreadyProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Transport delivers one encrypted message to one subscription.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, keys webpush.Keys, payload []byte) (webpush.Outcome, error)
}

// Summary aggregates the outcome of one dispatch pass.
type Summary struct {
	NewEvents int `json:"new_events"`
	Notified  int `json:"notified"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Removed   int `json:"removed"`
}

// Dispatcher runs fan-out passes over incident batches. It is invoked by
// an external scheduler and runs each pass to completion; it spawns no
// background work of its own.
type Dispatcher struct {
	directory SubscriptionDirectory
	ledger    Ledger
	transport Transport
	workers   int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers overrides the per-event delivery concurrency.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// New creates a dispatcher.
func New(dir SubscriptionDirectory, led Ledger, transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory: dir,
		ledger:    led,
		transport: transport,
		workers:   defaultWorkerCount,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one fan-out pass over an ordered incident batch and
// returns the aggregated summary. A storage failure (directory listing
// or ledger access) aborts the pass and is surfaced to the caller;
// individual delivery failures never do.
//
// Each incident is marked processed exactly once, after all deliveries
// for it have been attempted, regardless of their outcome: a transient
// failure is not retried on a later pass. The marker write is an atomic
// create-if-absent, but two passes racing between the ledger check and
// the marker write can both fan out; duplicate notification under truly
// concurrent passes is a known, bounded risk accepted here.
func (d *Dispatcher) Dispatch(ctx context.Context, incidents []events.Incident) (*Summary, error) {
	subs, err := d.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	summary := &Summary{}
	for _, inc := range incidents {
		if inc.ID == "" {
			continue
		}

		processed, err := d.ledger.AlreadyProcessed(ctx, inc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger for %s: %w", inc.ID, err)
		}
		if processed {
			summary.Skipped++
			continue
		}

		summary.NewEvents++
		category := events.Classify(inc)

		var targets []directory.Subscription
		for _, sub := range subs {
			if sub.Prefs.Wants(category) {
				targets = append(targets, sub)
			}
		}

		if len(targets) == 0 {
			// Mark anyway: an event nobody wanted must not be
			// reconsidered on the next poll.
			if err := d.ledger.MarkProcessed(ctx, inc.ID); err != nil {
				return nil, fmt.Errorf("failed to mark %s processed: %w", inc.ID, err)
			}
			summary.Skipped++
			continue
		}

		payload, err := json.Marshal(BuildPayload(inc, category))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for %s: %w", inc.ID, err)
		}

		notified, failed, removed := d.fanOut(ctx, inc.ID, targets, payload)
		summary.Notified += notified
		summary.Failed += failed
		summary.Removed += removed

		if err := d.ledger.MarkProcessed(ctx, inc.ID); err != nil {
			return nil, fmt.Errorf("failed to mark %s processed: %w", inc.ID, err)
		}

		slog.Info("Dispatched incident",
			"incident_id", inc.ID,
			"category", category,
			"targets", len(targets),
			"notified", notified,
			"failed", failed,
			"removed", removed,
		)
	}

	return summary, nil
}

// fanOut delivers one payload to every target over a bounded worker
// pool. A Gone outcome evicts the subscription; deleting an endpoint
// another worker already deleted is a no-op, so evictions need no
// coordination.
func (d *Dispatcher) fanOut(ctx context.Context, incidentID string, targets []directory.Subscription, payload []byte) (notified, failed, removed int) {
	workers := d.workers
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan directory.Subscription)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				outcome, err := d.transport.Deliver(ctx, sub.Endpoint, sub.Keys, payload)
				switch outcome {
				case webpush.OutcomeDelivered:
					mu.Lock()
					notified++
					mu.Unlock()
				case webpush.OutcomeGone:
					if derr := d.directory.DeleteByEndpoint(ctx, sub.Endpoint); derr != nil {
						slog.Warn("Failed to remove gone subscription",
							"incident_id", incidentID,
							"error", derr,
						)
						mu.Lock()
						failed++
						mu.Unlock()
						continue
					}
					slog.Info("Removed gone subscription", "incident_id", incidentID)
					mu.Lock()
					removed++
					mu.Unlock()
				default:
					slog.Warn("Push delivery failed",
						"incident_id", incidentID,
						"outcome", outcome,
						"error", err,
					)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}

	for _, sub := range targets {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	return notified, failed, removed
}
