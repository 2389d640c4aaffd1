package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bp037/vc-incident-watch/internal/events"
	"github.com/Bp037/vc-incident-watch/internal/webpush"
)

func TestSubscriptionKey(t *testing.T) {
	endpoint := "https://fcm.googleapis.com/fcm/send/abc123"

	key := SubscriptionKey(endpoint)

	if !strings.HasPrefix(key, "push_sub:") {
		t.Errorf("key %q missing push_sub: prefix", key)
	}
	// The raw endpoint URL embeds a capability token and must not leak
	// into the key.
	if strings.Contains(key, "abc123") {
		t.Errorf("key %q contains raw endpoint material", key)
	}
	if key != SubscriptionKey(endpoint) {
		t.Error("key derivation is not deterministic")
	}
	if key == SubscriptionKey(endpoint+"x") {
		t.Error("distinct endpoints produced the same key")
	}
}

func TestPreferenceFlags_Normalize(t *testing.T) {
	off := false
	on := true

	tests := []struct {
		name  string
		flags PreferenceFlags
		want  Preferences
	}{
		{
			name:  "absent flags default to on",
			flags: PreferenceFlags{},
			want:  Preferences{Fire: true, Traffic: true, Medical: true, Hazmat: true},
		},
		{
			name:  "explicit false is kept",
			flags: PreferenceFlags{Fire: &off, Medical: &off},
			want:  Preferences{Fire: false, Traffic: true, Medical: false, Hazmat: true},
		},
		{
			name:  "explicit true is kept",
			flags: PreferenceFlags{Fire: &on, Traffic: &off},
			want:  Preferences{Fire: true, Traffic: false, Medical: true, Hazmat: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.Normalize(); got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func setupIntegration(t *testing.T) (*Store, *redis.Client, context.Context) {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	return NewStore(client), client, ctx
}

func testEndpoint(suffix string) string {
	return "https://push.example/integration-" + time.Now().Format("150405.000000000") + "-" + suffix
}

func findByEndpoint(subs []Subscription, endpoint string) (Subscription, bool) {
	for _, s := range subs {
		if s.Endpoint == endpoint {
			return s, true
		}
	}
	return Subscription{}, false
}

func TestStore_PutListDelete_Integration(t *testing.T) {
	store, client, ctx := setupIntegration(t)

	endpoint := testEndpoint("putlist")
	defer client.Del(ctx, SubscriptionKey(endpoint))

	sub := Subscription{
		Endpoint:  endpoint,
		Keys:      webpush.Keys{P256dh: "pk", Auth: "ak"},
		Prefs:     Preferences{Fire: true, Medical: true},
		DeviceID:  "dev-putlist",
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Put(ctx, sub); err != nil {
		t.Fatalf("Put() error = %v, want nil", err)
	}

	subs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	got, ok := findByEndpoint(subs, endpoint)
	if !ok {
		t.Fatal("List() did not return the stored subscription")
	}
	if got.Keys != sub.Keys || got.Prefs != sub.Prefs || got.DeviceID != sub.DeviceID {
		t.Errorf("List() returned %+v, want %+v", got, sub)
	}

	// Re-putting the same endpoint replaces the record in place.
	sub.Prefs = Preferences{Hazmat: true}
	if err := store.Put(ctx, sub); err != nil {
		t.Fatalf("Put() replace error = %v, want nil", err)
	}
	subs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	got, ok = findByEndpoint(subs, endpoint)
	if !ok {
		t.Fatal("List() lost the subscription after replace")
	}
	if got.Prefs != (Preferences{Hazmat: true}) {
		t.Errorf("List() prefs after replace = %+v, want hazmat only", got.Prefs)
	}

	if err := store.DeleteByEndpoint(ctx, endpoint); err != nil {
		t.Fatalf("DeleteByEndpoint() error = %v, want nil", err)
	}
	subs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if _, ok := findByEndpoint(subs, endpoint); ok {
		t.Error("List() still returns the subscription after delete")
	}

	// Deleting again is a no-op.
	if err := store.DeleteByEndpoint(ctx, endpoint); err != nil {
		t.Errorf("DeleteByEndpoint() repeat error = %v, want nil", err)
	}
}

func TestStore_PutRequiresEndpoint(t *testing.T) {
	store := NewStore(nil)
	if err := store.Put(context.Background(), Subscription{}); err == nil {
		t.Error("Put() with empty endpoint succeeded, want error")
	}
}

func TestStore_DeleteByDevice_Integration(t *testing.T) {
	store, client, ctx := setupIntegration(t)

	deviceID := "dev-" + time.Now().Format("150405.000000000")
	matching := []string{testEndpoint("deva"), testEndpoint("devb")}
	other := testEndpoint("devc")
	defer func() {
		for _, ep := range append(matching, other) {
			client.Del(ctx, SubscriptionKey(ep))
		}
	}()

	for _, ep := range matching {
		if err := store.Put(ctx, Subscription{Endpoint: ep, DeviceID: deviceID}); err != nil {
			t.Fatalf("Put() error = %v, want nil", err)
		}
	}
	if err := store.Put(ctx, Subscription{Endpoint: other, DeviceID: "dev-other"}); err != nil {
		t.Fatalf("Put() error = %v, want nil", err)
	}

	removed, err := store.DeleteByDevice(ctx, deviceID)
	if err != nil {
		t.Fatalf("DeleteByDevice() error = %v, want nil", err)
	}
	if removed != 2 {
		t.Errorf("DeleteByDevice() removed = %d, want 2", removed)
	}

	subs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	for _, ep := range matching {
		if _, ok := findByEndpoint(subs, ep); ok {
			t.Errorf("List() still returns %s after device delete", ep)
		}
	}
	if _, ok := findByEndpoint(subs, other); !ok {
		t.Error("DeleteByDevice() removed a subscription for a different device")
	}

	// An empty device id never matches anything.
	removed, err = store.DeleteByDevice(ctx, "")
	if err != nil {
		t.Fatalf("DeleteByDevice(\"\") error = %v, want nil", err)
	}
	if removed != 0 {
		t.Errorf("DeleteByDevice(\"\") removed = %d, want 0", removed)
	}
}

func TestStore_ListSkipsCorruptRecords_Integration(t *testing.T) {
	store, client, ctx := setupIntegration(t)

	good := testEndpoint("good")
	corruptKey := SubscriptionKey(testEndpoint("corrupt"))
	defer func() {
		client.Del(ctx, SubscriptionKey(good))
		client.Del(ctx, corruptKey)
	}()

	if err := store.Put(ctx, Subscription{Endpoint: good, DeviceID: "dev-good"}); err != nil {
		t.Fatalf("Put() error = %v, want nil", err)
	}
	if err := client.Set(ctx, corruptKey, "{not json", 0).Err(); err != nil {
		t.Fatalf("Failed to plant corrupt record: %v", err)
	}

	subs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil (corrupt records must be skipped, not fatal)", err)
	}
	if _, ok := findByEndpoint(subs, good); !ok {
		t.Error("List() dropped a valid record alongside the corrupt one")
	}
}

func TestPreferences_Wants(t *testing.T) {
	prefs := Preferences{Fire: false, Traffic: true, Medical: true, Hazmat: false}

	tests := []struct {
		category events.Category
		want     bool
	}{
		{events.CategoryFire, false},
		{events.CategoryTrafficCollision, true},
		{events.CategoryMedical, true},
		{events.CategoryHazmat, false},
		{events.Category("UNKNOWN"), false},
	}

	for _, tt := range tests {
		if got := prefs.Wants(tt.category); got != tt.want {
			t.Errorf("Wants(%v) = %v, want %v", tt.category, got, tt.want)
		}
	}
}
