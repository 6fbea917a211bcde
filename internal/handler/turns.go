package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-ai/research-agent/internal/middleware"
	"github.com/keystone-ai/research-agent/internal/model"
	"github.com/keystone-ai/research-agent/internal/service"
	"github.com/keystone-ai/research-agent/pkg/logger"
)

// TurnHandler handles synchronous turn endpoints.
type TurnHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(sessions *service.SessionService, log *logger.Logger) *TurnHandler {
	return &TurnHandler{
		sessions: sessions,
		logger:   log,
	}
}

// Run handles POST /api/v1/threads/:id/turns
func (h *TurnHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTurnContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sessions.HandleTurn(ctx, threadID, req.Content)
	if err != nil {
		h.logger.Error("turn failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusBadGateway, "turn failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
