package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// respond writes a JSON response with the given status code.
func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// respondError writes the {success:false, error:...} envelope spec.md §6
// requires of every failure response.
func respondError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{"success": false, "error": message}
	for k, v := range extra {
		body[k] = v
	}
	respond(w, status, body)
}
