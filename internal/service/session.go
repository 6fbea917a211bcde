// Package service provides the session façade gluing user turns to the
// agent loop and the checkpoint store.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-ai/research-agent/internal/agent"
	"github.com/keystone-ai/research-agent/internal/checkpoint"
	"github.com/keystone-ai/research-agent/internal/model"
	natsclient "github.com/keystone-ai/research-agent/internal/nats"
	"github.com/keystone-ai/research-agent/pkg/logger"
	"github.com/keystone-ai/research-agent/pkg/metrics"
)

// SessionService orchestrates one user turn: load latest checkpoint, run the
// agent loop, persist the result. Turns on distinct threads run concurrently;
// turns on the same thread serialize on a per-thread lock.
type SessionService struct {
	store  checkpoint.Store
	loop   *agent.Loop
	events *natsclient.EventPublisher
	logger *logger.Logger

	// Per-thread locks. Entries are never reaped; threads are cheap and
	// the set is bounded by the number of live conversations.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionService creates a new session service. The event publisher may
// be nil when the event bus is not configured.
func NewSessionService(
	store checkpoint.Store,
	loop *agent.Loop,
	events *natsclient.EventPublisher,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		store:  store,
		loop:   loop,
		events: events,
		logger: log,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *SessionService) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	return lock
}

// HandleTurn runs one user turn against a thread and returns the final
// answer plus the ordered-unique set of tools invoked during the turn.
func (s *SessionService) HandleTurn(ctx context.Context, threadID, userText string) (*model.TurnResponse, error) {
	return s.HandleTurnWithEvents(ctx, threadID, userText, nil)
}

// HandleTurnWithEvents is HandleTurn with incremental progress events
// forwarded to onEvent and, when configured, to the event bus.
func (s *SessionService) HandleTurnWithEvents(
	ctx context.Context,
	threadID, userText string,
	onEvent agent.EventFunc,
) (*model.TurnResponse, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id cannot be empty")
	}
	if userText == "" {
		return nil, fmt.Errorf("user text cannot be empty")
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	// A deleted or unknown thread resolves to an empty state, so the next
	// turn implicitly starts a fresh conversation.
	cp, err := s.store.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	var state model.State
	if cp != nil {
		state = cp.State
	}

	state = append(state, model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	})

	newState, err := s.loop.RunWithEvents(ctx, state, s.fanOut(ctx, threadID, onEvent))
	if err != nil {
		// No checkpoint for a turn that never reached a terminal answer:
		// the thread's persisted state stays exactly as it was.
		metrics.RecordTurn("error", time.Since(start).Seconds())
		return nil, err
	}

	writeStart := time.Now()
	if _, err := s.store.Append(ctx, threadID, newState); err != nil {
		metrics.RecordTurn("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("persist thread %s: %w", threadID, err)
	}
	metrics.CheckpointWrites.Observe(time.Since(writeStart).Seconds())

	answer := ""
	if last := newState.LastMessage(); last != nil {
		answer = last.Content
	}

	toolsUsed := turnTools(newState)

	metrics.RecordTurn("success", time.Since(start).Seconds())
	s.logger.Info("turn completed",
		"thread_id", threadID,
		"tools_used", toolsUsed,
		"messages", len(newState),
	)

	return &model.TurnResponse{
		ThreadID:  threadID,
		Answer:    answer,
		ToolsUsed: toolsUsed,
	}, nil
}

// fanOut wraps the caller's event callback so progress events also reach the
// event bus. Publish failures are advisory.
func (s *SessionService) fanOut(ctx context.Context, threadID string, onEvent agent.EventFunc) agent.EventFunc {
	if onEvent == nil && s.events == nil {
		return nil
	}
	return func(event model.TurnEvent) {
		event.ThreadID = threadID
		if onEvent != nil {
			onEvent(event)
		}
		if err := s.events.PublishTurnEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish turn event",
				"thread_id", threadID,
				"type", event.Type,
				"error", err,
			)
		}
	}
}

// turnTools returns the ordered-unique tool names invoked during the most
// recent turn, i.e. since the last user message.
func turnTools(state model.State) []string {
	from := 0
	for i := len(state) - 1; i >= 0; i-- {
		if state[i].Role == model.RoleUser {
			from = i
			break
		}
	}
	tools := state.ToolsUsed(from)
	if tools == nil {
		tools = []string{}
	}
	return tools
}

// ListThreads enumerates all threads, most recently active first.
func (s *SessionService) ListThreads(ctx context.Context) (*model.ListThreadsResponse, error) {
	threads, err := s.store.ListThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	if threads == nil {
		threads = []model.ThreadInfo{}
	}
	return &model.ListThreadsResponse{
		Threads: threads,
		Total:   len(threads),
	}, nil
}

// DeleteThread removes every snapshot for the thread and reports whether
// anything was deleted. Deleting twice is safe.
func (s *SessionService) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := s.store.DeleteThread(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	if deleted {
		metrics.ThreadsDeleted.Inc()
		s.logger.Info("thread deleted", "thread_id", threadID)
	}
	return deleted, nil
}

// LoadHistory returns the displayable conversation entries for a thread:
// user- and assistant-authored content-bearing messages, with tool activity
// summarized on the assistant entry that follows it. An unknown thread
// yields an empty history.
func (s *SessionService) LoadHistory(ctx context.Context, threadID string) ([]model.HistoryEntry, error) {
	cp, err := s.store.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	if cp == nil {
		return []model.HistoryEntry{}, nil
	}

	entries := []model.HistoryEntry{}
	var pending []string
	seen := make(map[string]struct{})

	resetPending := func() {
		pending = nil
		seen = make(map[string]struct{})
	}

	for _, msg := range cp.State {
		switch msg.Role {
		case model.RoleUser:
			resetPending()
			if msg.Content != "" {
				entries = append(entries, model.HistoryEntry{
					Role:    model.RoleUser,
					Content: msg.Content,
				})
			}

		case model.RoleAssistant:
			for _, call := range msg.ToolCalls {
				if _, ok := seen[call.Name]; ok {
					continue
				}
				seen[call.Name] = struct{}{}
				pending = append(pending, call.Name)
			}
			if msg.Content != "" {
				entries = append(entries, model.HistoryEntry{
					Role:      model.RoleAssistant,
					Content:   msg.Content,
					ToolsUsed: pending,
				})
				resetPending()
			}
		}
	}

	return entries, nil
}
