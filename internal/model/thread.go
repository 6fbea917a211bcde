package model

import (
	"time"
)

// ThreadInfo summarizes one thread in the checkpoint store.
type ThreadInfo struct {
	ThreadID        string    `json:"thread_id"`
	CheckpointCount int       `json:"checkpoint_count"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Checkpoint is an immutable snapshot of a thread's conversation state.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"state"`
}

// TurnRequest is the request to run one agent turn.
type TurnRequest struct {
	Content string `json:"content"`
}

// TurnResponse is the result of one agent turn.
type TurnResponse struct {
	ThreadID  string   `json:"thread_id"`
	Answer    string   `json:"answer"`
	ToolsUsed []string `json:"tools_used"`
}

// HistoryEntry is a displayable conversation entry: user- and
// assistant-authored, content-bearing messages only. Tool activity is
// summarized on the assistant entry that followed it.
type HistoryEntry struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// ListThreadsResponse is the response for listing threads.
type ListThreadsResponse struct {
	Threads []ThreadInfo `json:"threads"`
	Total   int          `json:"total"`
}

// CreateThreadResponse is the response for minting a fresh thread id.
type CreateThreadResponse struct {
	ThreadID string `json:"thread_id"`
}

// HistoryResponse is the response for loading displayable history.
type HistoryResponse struct {
	ThreadID string         `json:"thread_id"`
	Entries  []HistoryEntry `json:"entries"`
}
