package dispatcher

import (
	"net/url"
	"strings"

	"github.com/Bp037/vc-incident-watch/internal/events"
)

const (
	notificationIcon  = "/icons/icon-192.png"
	notificationBadge = "/icons/icon-192.png"
)

// Payload is the JSON notification document delivered to the browser.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
	Tag   string      `json:"tag"`
	Data  PayloadData `json:"data"`
}

// PayloadData carries the click-through target.
type PayloadData struct {
	URL string `json:"url"`
}

// BuildPayload assembles the notification for one incident. The tag is
// the incident id so the client replaces a prior notification for the
// same incident instead of stacking duplicates.
func BuildPayload(inc events.Incident, category events.Category) Payload {
	address := inc.FullAddress
	if address == "" {
		address = inc.Address
	}
	if address == "" {
		address = "Ventura County"
	}

	incidentType := inc.IncidentType
	if incidentType == "" {
		incidentType = "Incident"
	}

	parts := []string{incidentType, address}
	if inc.ResponseDate != "" {
		parts = append(parts, inc.ResponseDate)
	}

	clickURL := "/"
	if inc.Address != "" || inc.FullAddress != "" {
		clickURL = mapsLink(address)
	}

	return Payload{
		Title: category.Label(),
		Body:  strings.Join(parts, " • "),
		Icon:  notificationIcon,
		Badge: notificationBadge,
		Tag:   inc.ID,
		Data:  PayloadData{URL: clickURL},
	}
}

func mapsLink(address string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(address)
}
