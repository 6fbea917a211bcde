package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToAnthropicMessagesCollapsesToolResults(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "user", Content: "compare 2+2 and 3+3"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "call-1", Name: "calculator", Arguments: map[string]any{"expression": "2+2"}},
			{ID: "call-2", Name: "calculator", Arguments: map[string]any{"expression": "3+3"}},
		}},
		{Role: "tool", Content: "4", ToolCallID: "call-1"},
		{Role: "tool", Content: "6", ToolCallID: "call-2"},
		{Role: "assistant", Content: "4 and 6."},
	}

	out := toAnthropicMessages(msgs)

	// Both tool results collapse into a single user message, so the
	// conversation alternates user/assistant as the API requires.
	assert.Len(t, out, 4)
}

func TestToAnthropicMessagesSkipsEmptyAssistant(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: ""},
	}

	out := toAnthropicMessages(msgs)
	assert.Len(t, out, 1)
}
