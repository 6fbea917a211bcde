package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keystone-ai/research-agent/internal/middleware"
	"github.com/keystone-ai/research-agent/internal/model"
	"github.com/keystone-ai/research-agent/internal/service"
	"github.com/keystone-ai/research-agent/pkg/logger"
	"github.com/keystone-ai/research-agent/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	sessions *service.SessionService
	logger   *logger.Logger

	// heartbeatInterval paces keep-alive events while a turn runs.
	heartbeatInterval time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(sessions *service.SessionService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		sessions:          sessions,
		logger:            log,
		heartbeatInterval: 30 * time.Second,
	}
}

// RunStream handles POST /api/v1/threads/:id/turns/stream
//
// The turn runs exactly as in the synchronous endpoint; progress events
// (tool started/finished) and the final answer are delivered as SSE events.
func (h *StreamHandler) RunStream(w http.ResponseWriter, r *http.Request) {
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

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Events arrive from concurrently executing tools; the response writer
	// is not safe for concurrent use.
	var mu sync.Mutex
	send := func(event string, data any) {
		mu.Lock()
		defer mu.Unlock()
		sendSSEEvent(w, flusher, event, data)
	}

	send("connected", map[string]string{"thread_id": threadID})

	// Heartbeats keep idle-connection proxies from cutting the stream while
	// the model thinks or a slow tool runs.
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	turnDone := make(chan struct{})
	defer close(turnDone)
	go func() {
		for {
			select {
			case <-turnDone:
				return
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				send("heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()})
			}
		}
	}()

	resp, err := h.sessions.HandleTurnWithEvents(ctx, threadID, req.Content,
		func(event model.TurnEvent) {
			send(string(event.Type), event)
		},
	)
	if err != nil {
		h.logger.Error("streamed turn failed", "thread_id", threadID, "error", err)
		send(string(model.EventTypeError), &model.ErrorEvent{
			Code:    "turn_failed",
			Message: "turn failed",
		})
		return
	}

	send(string(model.EventTypeAnswer), resp)
	send("done", map[string]bool{"success": true})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
