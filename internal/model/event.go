package model

import (
	"time"
)

// TurnEventType represents the type of turn progress event.
type TurnEventType string

const (
	EventTypeToolStarted  TurnEventType = "tool_started"
	EventTypeToolFinished TurnEventType = "tool_finished"
	EventTypeAnswer       TurnEventType = "answer"
	EventTypeError        TurnEventType = "error"
)

// TurnEvent is an incremental progress event emitted while a turn runs.
// Streaming these to a caller is layered over the agent loop; it does not
// change the loop's final-state contract.
type TurnEvent struct {
	ThreadID  string        `json:"thread_id"`
	Type      TurnEventType `json:"type"`
	Tool      string        `json:"tool,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ErrorEvent represents an error sent over an event stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a keep-alive event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
