// Package httpapi provides the HTTP handlers for the push subscription
// API.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Bp037/vc-incident-watch/internal/directory"
	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
)

// secretHeader carries the shared secret for privileged endpoints.
const secretHeader = "X-Push-Secret"

// Handlers wraps dependencies for the push API handlers.
type Handlers struct {
	store          DirectoryStore
	sender         PushSender
	cache          IncidentCache
	vapidPublicKey string
	testSecret     string
}

// NewHandlers creates a new handlers instance. An empty testSecret
// disables the test-push endpoint.
func NewHandlers(store DirectoryStore, sender PushSender, cache IncidentCache, vapidPublicKey, testSecret string) *Handlers {
	return &Handlers{
		store:          store,
		sender:         sender,
		cache:          cache,
		vapidPublicKey: vapidPublicKey,
		testSecret:     testSecret,
	}
}

// SubscribeRequest is the body of a subscribe call: the browser's
// PushSubscription plus optional preferences and a device identifier.
type SubscribeRequest struct {
	Subscription struct {
		Endpoint string       `json:"endpoint"`
		Keys     webpush.Keys `json:"keys"`
	} `json:"subscription"`
	Prefs    directory.PreferenceFlags `json:"prefs"`
	DeviceID string                    `json:"deviceId"`
}

// UnsubscribeRequest removes subscriptions by endpoint and/or device id.
type UnsubscribeRequest struct {
	Endpoint     string `json:"endpoint"`
	Subscription struct {
		Endpoint string `json:"endpoint"`
	} `json:"subscription"`
	DeviceID string `json:"deviceId"`
}

// Subscribe creates or replaces the subscription for an endpoint.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint := req.Subscription.Endpoint
	if endpoint == "" {
		http.Error(w, "subscription endpoint is required", http.StatusBadRequest)
		return
	}
	if req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		http.Error(w, "subscription keys are required", http.StatusBadRequest)
		return
	}

	sub := directory.Subscription{
		Endpoint:  endpoint,
		Keys:      req.Subscription.Keys,
		Prefs:     req.Prefs.Normalize(),
		DeviceID:  req.DeviceID,
		UpdatedAt: time.Now().UTC(),
	}

	if err := h.store.Put(r.Context(), sub); err != nil {
		slog.Error("Failed to store subscription", "error", err)
		http.Error(w, "Failed to store subscription", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Unsubscribe removes subscriptions by endpoint and/or device id and
// reports how many were removed.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Subscription.Endpoint
	}
	if endpoint == "" && req.DeviceID == "" {
		http.Error(w, "endpoint or deviceId is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	removed := 0

	if endpoint != "" {
		if err := h.store.DeleteByEndpoint(ctx, endpoint); err != nil {
			slog.Error("Failed to delete subscription", "error", err)
			http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
			return
		}
		removed++
	}

	if req.DeviceID != "" {
		n, err := h.store.DeleteByDevice(ctx, req.DeviceID)
		if err != nil {
			slog.Error("Failed to delete subscriptions by device", "error", err)
			http.Error(w, "Failed to delete subscriptions", http.StatusInternalServerError)
			return
		}
		removed += n
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed})
}

// Status reports the stored preferences for a device or endpoint. A
// lookup miss is not an error; it returns all-false preferences so the
// client offers to subscribe.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	endpoint := r.URL.Query().Get("endpoint")
	if deviceID == "" && endpoint == "" {
		http.Error(w, "deviceId or endpoint is required", http.StatusBadRequest)
		return
	}

	subs, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("Failed to list subscriptions", "error", err)
		http.Error(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}

	for _, sub := range subs {
		if (deviceID != "" && sub.DeviceID == deviceID) || (endpoint != "" && sub.Endpoint == endpoint) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "subscribed": true, "prefs": sub.Prefs})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "subscribed": false, "prefs": directory.Preferences{}})
}

// Config exposes the VAPID public key the browser needs to subscribe.
func (h *Handlers) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "vapidPublicKey": h.vapidPublicKey})
}

// TestPushRequest optionally narrows the test delivery to one category.
type TestPushRequest struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// TestPush sends a test notification to every matching subscription.
// Requires the shared secret; disabled entirely when no secret is
// configured.
func (h *Handlers) TestPush(w http.ResponseWriter, r *http.Request) {
	if h.testSecret == "" || r.Header.Get(secretHeader) != h.testSecret {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req TestPushRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	title := req.Title
	if title == "" {
		title = "VC Watch Test"
	}
	body := req.Body
	if body == "" {
		body = "Test notification from VC Watch."
	}
	payload, err := json.Marshal(map[string]any{
		"title": title,
		"body":  body,
		"icon":  "/icons/icon-192.png",
		"badge": "/icons/icon-192.png",
		"data":  map[string]string{"url": "/"},
	})
	if err != nil {
		http.Error(w, "Failed to build payload", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	subs, err := h.store.List(ctx)
	if err != nil {
		slog.Error("Failed to list subscriptions", "error", err)
		http.Error(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}

	sent, failed, removed := 0, 0, 0
	for _, sub := range subs {
		if req.Category != "" && !sub.Prefs.Wants(normalizeCategory(req.Category)) {
			continue
		}
		outcome, derr := h.sender.Deliver(ctx, sub.Endpoint, sub.Keys, payload)
		switch outcome {
		case webpush.OutcomeDelivered:
			sent++
		case webpush.OutcomeGone:
			if err := h.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				slog.Warn("Failed to remove gone subscription", "error", err)
			}
			removed++
		default:
			slog.Warn("Test push failed", "error", derr)
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"sent":    sent,
		"failed":  failed,
		"removed": removed,
	})
}

// LatestIncidents returns the most recently cached feed snapshot. An
// empty cache is not an error; the client renders an empty list.
func (h *Handlers) LatestIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, lastUpdated, err := h.cache.Latest(r.Context())
	if err != nil {
		slog.Error("Failed to read incident cache", "error", err)
		http.Error(w, "Failed to read incidents", http.StatusInternalServerError)
		return
	}
	if incidents == nil {
		incidents = []events.Incident{}
	}

	resp := map[string]any{"ok": true, "incidents": incidents}
	if lastUpdated != "" {
		resp["lastUpdated"] = lastUpdated
	} else {
		resp["lastUpdated"] = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health responds to liveness probes.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
