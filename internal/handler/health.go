// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"

	natsclient "github.com/keystone-ai/research-agent/internal/nats"
)

// Pinger reports whether the checkpoint store's backing medium is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store      Pinger
	natsClient *natsclient.Client
}

// NewHealthHandler creates a new health handler. The NATS client may be nil
// when the event bus is not configured.
func NewHealthHandler(store Pinger, natsClient *natsclient.Client) *HealthHandler {
	return &HealthHandler{
		store:      store,
		natsClient: natsClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "checkpoint store unavailable",
			})
			return
		}
	}

	// The event bus is optional; only report it when configured.
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
