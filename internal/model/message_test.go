package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateHasSystemMessage(t *testing.T) {
	assert.False(t, State{}.HasSystemMessage())
	assert.False(t, State{{Role: RoleUser}}.HasSystemMessage())
	assert.True(t, State{{Role: RoleSystem}, {Role: RoleUser}}.HasSystemMessage())
}

func TestStateLastMessage(t *testing.T) {
	assert.Nil(t, State{}.LastMessage())

	s := State{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}
	last := s.LastMessage()
	assert.Equal(t, "b", last.Content)
}

func TestStateToolsUsed(t *testing.T) {
	s := State{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "wikipedia"}}},
		{Role: RoleTool, Content: "..."},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "calculator"}, {Name: "wikipedia"}}},
		{Role: RoleTool, Content: "..."},
		{Role: RoleTool, Content: "..."},
		{Role: RoleAssistant, Content: "answer"},
	}

	// Duplicates collapse to first occurrence, order preserved.
	assert.Equal(t, []string{"wikipedia", "calculator"}, s.ToolsUsed(0))

	// Scanning from the later assistant message skips the first request.
	assert.Equal(t, []string{"calculator", "wikipedia"}, s.ToolsUsed(3))

	// Negative offsets clamp to the start.
	assert.Equal(t, []string{"wikipedia", "calculator"}, s.ToolsUsed(-5))

	assert.Nil(t, s.ToolsUsed(6))
}
