package testutil

import (
	"encoding/json"
	"net/http"
)

// ReplyJSON writes a JSON body with the given status code.
func ReplyJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ReplyHealthy writes the standard downstream health body.
func ReplyHealthy(w http.ResponseWriter) {
	ReplyJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// ReplyServerError writes a 5xx error body.
func ReplyServerError(w http.ResponseWriter, status int, message string) {
	ReplyJSON(w, status, map[string]any{"error": message})
}

// ReplyNotFound writes a 404 error body.
func ReplyNotFound(w http.ResponseWriter, message string) {
	ReplyJSON(w, http.StatusNotFound, map[string]any{"error": message})
}
