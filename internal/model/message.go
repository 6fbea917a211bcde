// Package model defines data structures for the research agent.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message represents one turn unit in a conversation.
//
// An assistant message may carry tool calls and no content; a tool-result
// message carries the ToolCallID of the call it answers.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// State is the ordered message history of one thread. Append-only; the
// insertion order is the semantic order.
type State []Message

// HasSystemMessage reports whether the state starts with a system message.
func (s State) HasSystemMessage() bool {
	return len(s) > 0 && s[0].Role == RoleSystem
}

// LastMessage returns the trailing message, or nil for an empty state.
func (s State) LastMessage() *Message {
	if len(s) == 0 {
		return nil
	}
	return &s[len(s)-1]
}

// ToolsUsed returns the ordered-unique tool names requested by assistant
// messages in s[from:]. Duplicates collapse to their first occurrence.
func (s State) ToolsUsed(from int) []string {
	if from < 0 {
		from = 0
	}
	seen := make(map[string]struct{})
	var names []string
	for _, msg := range s[from:] {
		if msg.Role != RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if _, ok := seen[call.Name]; ok {
				continue
			}
			seen[call.Name] = struct{}{}
			names = append(names, call.Name)
		}
	}
	return names
}
