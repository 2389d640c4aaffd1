package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Bp037/vc-incident-watch/internal/events"
)

// maxBodySize bounds request bodies; subscription payloads are small.
const maxBodySize = 64 << 10

// decodeJSON decodes the request body into v, writing a 400 response and
// returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// normalizeCategory uppercases and trims a client-supplied category name.
func normalizeCategory(category string) events.Category {
	return events.Category(strings.ToUpper(strings.TrimSpace(category)))
}
