package handler

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the uniform JSON error body every endpoint returns.
type errorEnvelope struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response. Encoding failures are unrecoverable
// once the header is out, so they are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}
