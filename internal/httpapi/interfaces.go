package httpapi

import (
	"context"

	"github.com/Bp037/vc-incident-watch/internal/directory"
	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
)

// DirectoryStore is the subscription store surface the handlers need.
type DirectoryStore interface {
	Put(ctx context.Context, sub directory.Subscription) error
	List(ctx context.Context) ([]directory.Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)
}

// PushSender delivers one encrypted message to one subscription. Used by
// the test-push endpoint.
type PushSender interface {
	Deliver(ctx context.Context, endpoint string, keys webpush.Keys, payload []byte) (webpush.Outcome, error)
}

// IncidentCache reads the latest cached feed snapshot.
type IncidentCache interface {
	Latest(ctx context.Context) ([]events.Incident, string, error)
}
