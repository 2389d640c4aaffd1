package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Fetch_BareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"incidentNumber":"25-001","incidentType":"Structure Fire","address":"Main St","city":"Ventura"},
			{"incidentType":"Medical Emergency","responseDate":"2026-08-30 15:00","address":"Oak Ave"},
			{"status":"Active"}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	incidents, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	// The third record has no id components and is dropped.
	if len(incidents) != 2 {
		t.Fatalf("Fetch() returned %d incidents, want 2", len(incidents))
	}
	if incidents[0].ID != "25-001" {
		t.Errorf("incidents[0].ID = %q, want 25-001", incidents[0].ID)
	}
	if incidents[1].ID != "2026-08-30 15:00|Oak Ave|Medical Emergency" {
		t.Errorf("incidents[1].ID = %q", incidents[1].ID)
	}
}

func TestClient_Fetch_Envelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"incidents":[{"IncidentNumber":"25-002","IncidentType":"TC Freeway"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	incidents, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("Fetch() returned %d incidents, want 1", len(incidents))
	}
	if incidents[0].ID != "25-002" {
		t.Errorf("incidents[0].ID = %q, want 25-002", incidents[0].ID)
	}
}

func TestClient_Fetch_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Error("Fetch() should fail on upstream error status")
	}
}

func TestClient_Fetch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Error("Fetch() should fail on malformed body")
	}
}
