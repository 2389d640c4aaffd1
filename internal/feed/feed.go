// Package feed fetches and caches the county fire department incident
// feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bp037/vc-incident-watch/internal/events"
)

const (
	// DefaultURL is the public county incident feed.
	DefaultURL = "https://firefeeds.venturacounty.gov/api/incidents"

	latestKey    = "vcfd:latest"
	updatedKey   = "vcfd:lastUpdated"
	fetchTimeout = 20 * time.Second
	maxBodySize  = 4 << 20
)

// Client fetches the raw incident feed over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a feed client for the given URL.
func NewClient(url string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		url: url,
	}
}

// envelope is the alternate feed shape where incidents are nested under
// an "incidents" field.
type envelope struct {
	Incidents []events.RawIncident `json:"incidents"`
}

// Fetch retrieves the feed and returns normalized incidents. Records
// that normalize to an empty id are dropped.
func (c *Client) Fetch(ctx context.Context) ([]events.Incident, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}

	// The feed serves either a bare array or an {"incidents": [...]}
	// envelope depending on the upstream version.
	var raws []events.RawIncident
	if err := json.Unmarshal(body, &raws); err != nil {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to decode feed response: %w", err)
		}
		raws = env.Incidents
	}

	incidents := make([]events.Incident, 0, len(raws))
	for _, raw := range raws {
		inc := events.Normalize(raw)
		if inc.ID == "" {
			continue
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// Cache stores the most recent feed snapshot in Redis so the status API
// and a restarted poller can read it without refetching.
type Cache struct {
	redis *redis.Client
}

// NewCache creates a feed cache on the given Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{redis: client}
}

// Store writes the latest incident snapshot and its fetch time.
func (c *Cache) Store(ctx context.Context, incidents []events.Incident, fetchedAt time.Time) error {
	data, err := json.Marshal(incidents)
	if err != nil {
		return fmt.Errorf("failed to marshal incidents: %w", err)
	}
	if err := c.redis.Set(ctx, latestKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to cache incidents: %w", err)
	}
	if err := c.redis.Set(ctx, updatedKey, fetchedAt.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to cache fetch time: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot and its fetch time, or an empty
// slice when nothing has been cached yet.
func (c *Cache) Latest(ctx context.Context) ([]events.Incident, string, error) {
	data, err := c.redis.Get(ctx, latestKey).Bytes()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read cached incidents: %w", err)
	}

	var incidents []events.Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, "", fmt.Errorf("failed to decode cached incidents: %w", err)
	}

	updated, err := c.redis.Get(ctx, updatedKey).Result()
	if err != nil && err != redis.Nil {
		return nil, "", fmt.Errorf("failed to read cache timestamp: %w", err)
	}
	return incidents, updated, nil
}
