// Package events defines the incident records and batch events exchanged
// between the poller and the notifier.
package events

import (
	"fmt"
	"strings"
)

// SchemaVersion is the current incident batch schema version.
const SchemaVersion = 1

// Incident represents one normalized incident from the county feed.
// Incidents are immutable once observed; the id is stable across
// re-fetches of the same incident.
type Incident struct {
	ID             string  `json:"id"`
	IncidentNumber string  `json:"incident_number,omitempty"`
	ResponseDate   string  `json:"response_date,omitempty"`
	IncidentType   string  `json:"incident_type,omitempty"`
	Status         string  `json:"status,omitempty"`
	Units          string  `json:"units,omitempty"`
	Address        string  `json:"address,omitempty"`
	City           string  `json:"city,omitempty"`
	FullAddress    string  `json:"full_address,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
}

// IncidentBatch is the event published to the incidents topic after each
// successful feed refresh. The notifier dispatches one batch at a time.
type IncidentBatch struct {
	SchemaVersion int        `json:"schema_version"`
	FetchedAt     string     `json:"fetched_at"` // RFC 3339
	Incidents     []Incident `json:"incidents"`
}

// RawIncident mirrors the county feed's wire shape. The feed is
// inconsistent about field casing, so both variants are captured.
type RawIncident struct {
	IncidentNumber  string `json:"incidentNumber"`
	IncidentNumber2 string `json:"IncidentNumber"`
	IncidentID      string `json:"IncidentID"`
	ID              string `json:"id"`

	ResponseDate  string `json:"responseDate"`
	ResponseDate2 string `json:"ResponseDate"`
	Date          string `json:"date"`
	Date2         string `json:"Date"`

	IncidentType  string `json:"incidentType"`
	IncidentType2 string `json:"IncidentType"`
	Status        string `json:"status"`
	Status2       string `json:"Status"`
	Units         string `json:"units"`
	Units2        string `json:"Units"`

	Block   string `json:"block"`
	Address string `json:"address"`
	City    string `json:"city"`

	Latitude   *float64 `json:"latitude"`
	Latitude2  *float64 `json:"Latitude"`
	Longitude  *float64 `json:"longitude"`
	Longitude2 *float64 `json:"Longitude"`
}

// Normalize converts a raw feed record into an Incident. When the feed
// carries no native incident number, the id is composed deterministically
// from the response date, address, and type so a re-fetch of the same
// incident yields the same id.
func Normalize(raw RawIncident) Incident {
	incidentNumber := coalesce(raw.IncidentNumber, raw.IncidentNumber2, raw.IncidentID, raw.ID)
	responseDate := coalesce(raw.ResponseDate, raw.ResponseDate2, raw.Date, raw.Date2)

	block := strings.TrimSpace(raw.Block)
	address := strings.TrimSpace(raw.Address)
	city := strings.TrimSpace(raw.City)
	fullAddress := strings.TrimSpace(strings.Join(nonEmpty(block, address), " "))
	fullWithCity := strings.TrimSpace(strings.Join(nonEmpty(fullAddress, city), ", "))

	incidentType := coalesce(raw.IncidentType, raw.IncidentType2)

	id := incidentNumber
	if id == "" && (responseDate != "" || fullWithCity != "" || incidentType != "") {
		id = fmt.Sprintf("%s|%s|%s", responseDate, fullWithCity, incidentType)
	}

	inc := Incident{
		ID:             id,
		IncidentNumber: incidentNumber,
		ResponseDate:   responseDate,
		IncidentType:   incidentType,
		Status:         coalesce(raw.Status, raw.Status2),
		Units:          coalesce(raw.Units, raw.Units2),
		Address:        fullAddress,
		City:           city,
		FullAddress:    fullWithCity,
	}
	if lat := coalesceFloat(raw.Latitude, raw.Latitude2); lat != nil {
		inc.Latitude = *lat
	}
	if lon := coalesceFloat(raw.Longitude, raw.Longitude2); lon != nil {
		inc.Longitude = *lon
	}
	return inc
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func coalesceFloat(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
