package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keystone-ai/research-agent/internal/middleware"
	"github.com/keystone-ai/research-agent/internal/model"
	"github.com/keystone-ai/research-agent/internal/service"
	"github.com/keystone-ai/research-agent/pkg/logger"
)

// ThreadHandler handles thread endpoints.
type ThreadHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(sessions *service.SessionService, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		sessions: sessions,
		logger:   log,
	}
}

// Create handles POST /api/v1/threads
//
// Threads are created implicitly on first use; this endpoint only mints a
// fresh id for clients that want the server to choose one.
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, &model.CreateThreadResponse{
		ThreadID: uuid.Must(uuid.NewV7()).String(),
	})
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.sessions.ListThreads(r.Context())
	if err != nil {
		h.logger.Error("failed to list threads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/threads/:id
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.sessions.DeleteThread(r.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to delete thread", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete thread")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// History handles GET /api/v1/threads/:id/history
func (h *ThreadHandler) History(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.sessions.LoadHistory(r.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to load history", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, &model.HistoryResponse{
		ThreadID: threadID,
		Entries:  entries,
	})
}
