package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keystone-ai/research-agent/internal/llm"
	"github.com/keystone-ai/research-agent/internal/model"
	"github.com/keystone-ai/research-agent/internal/tool"
	"github.com/keystone-ai/research-agent/pkg/logger"
)

// scriptedClient replays canned completions in order. A nil entry means the
// call fails.
type scriptedClient struct {
	mu       sync.Mutex
	script   []*llm.CompletionResponse
	requests []*llm.CompletionRequest
}

func (c *scriptedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return nil, fmt.Errorf("script exhausted after %d calls", len(c.requests))
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next == nil {
		return nil, fmt.Errorf("upstream unavailable")
	}
	return next, nil
}

func (c *scriptedClient) Name() string     { return "scripted" }
func (c *scriptedClient) Models() []string { return nil }

func answer(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text, StopReason: "end_turn"}
}

func toolRequest(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: calls, StopReason: "tool_use"}
}

func newTestLoop(client llm.Client, cfg Config) *Loop {
	registry := tool.NewRegistry()
	registry.Register(tool.NewCalculator())
	registry.Register(&tool.Tool{
		Name:        "slow",
		Description: "sleeps past any reasonable timeout",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(10 * time.Second):
				return "done", nil
			}
		},
	})
	return NewLoop(client, registry, logger.NewNop(), cfg)
}

func userState(text string) model.State {
	return model.State{{ID: "u1", Role: model.RoleUser, Content: text, CreatedAt: time.Now()}}
}

func TestRunDirectAnswer(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{answer("Paris.")}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("Capital of France?"))
	require.NoError(t, err)

	// System prompt prepended, user message, terminal answer.
	require.Len(t, state, 3)
	assert.Equal(t, model.RoleSystem, state[0].Role)
	assert.Equal(t, model.RoleUser, state[1].Role)
	assert.Equal(t, model.RoleAssistant, state[2].Role)
	assert.Equal(t, "Paris.", state[2].Content)
	assert.False(t, state[2].HasToolCalls())

	// The model saw the system prompt as system input, not as a message.
	require.Len(t, client.requests, 1)
	assert.NotEmpty(t, client.requests[0].System)
	require.Len(t, client.requests[0].Messages, 1)
	assert.NotEmpty(t, client.requests[0].Tools)
}

func TestRunSystemPromptNotDuplicated(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{answer("ok")}}
	loop := newTestLoop(client, Config{})

	prior := model.State{
		{ID: "s1", Role: model.RoleSystem, Content: "existing instructions"},
		{ID: "u1", Role: model.RoleUser, Content: "hi"},
	}
	state, err := loop.Run(context.Background(), prior)
	require.NoError(t, err)
	require.Len(t, state, 3)
	assert.Equal(t, "existing instructions", state[0].Content)
}

func TestRunToolRoundTrip(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(llm.ToolCall{
			ID:        "call-1",
			Name:      "calculator",
			Arguments: map[string]any{"expression": "6 * 7"},
		}),
		answer("The answer is 42."),
	}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("What is 6 times 7?"))
	require.NoError(t, err)

	// system, user, assistant tool request, tool result, final answer.
	require.Len(t, state, 5)

	request := state[2]
	require.True(t, request.HasToolCalls())
	require.Len(t, request.ToolCalls, 1)

	result := state[3]
	assert.Equal(t, model.RoleTool, result.Role)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Equal(t, "42", result.Content)

	final := state[4]
	assert.Equal(t, "The answer is 42.", final.Content)
}

func TestRunParallelToolBatchPreservesOrder(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(
			llm.ToolCall{ID: "call-a", Name: "calculator", Arguments: map[string]any{"expression": "1 + 1"}},
			llm.ToolCall{ID: "call-b", Name: "calculator", Arguments: map[string]any{"expression": "2 + 2"}},
			llm.ToolCall{ID: "call-c", Name: "calculator", Arguments: map[string]any{"expression": "3 + 3"}},
		),
		answer("done"),
	}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("sums please"))
	require.NoError(t, err)
	require.Len(t, state, 7)

	// Exactly one result per call, in call order, ids matching.
	results := state[3:6]
	assert.Equal(t, "call-a", results[0].ToolCallID)
	assert.Equal(t, "2", results[0].Content)
	assert.Equal(t, "call-b", results[1].ToolCallID)
	assert.Equal(t, "4", results[1].Content)
	assert.Equal(t, "call-c", results[2].ToolCallID)
	assert.Equal(t, "6", results[2].Content)
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(llm.ToolCall{ID: "call-1", Name: "teleport", Arguments: map[string]any{}}),
		answer("I could not do that."),
	}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("beam me up"))
	require.NoError(t, err)
	require.Len(t, state, 5)

	result := state[3]
	assert.Equal(t, model.RoleTool, result.Role)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Contains(t, result.Content, `unknown tool "teleport"`)
}

func TestRunToolTimeoutBecomesErrorResult(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(llm.ToolCall{ID: "call-1", Name: "slow", Arguments: map[string]any{}}),
		answer("That took too long."),
	}}
	loop := newTestLoop(client, Config{ToolTimeout: 20 * time.Millisecond})

	state, err := loop.Run(context.Background(), userState("do the slow thing"))
	require.NoError(t, err)
	require.Len(t, state, 5)

	result := state[3]
	assert.Contains(t, result.Content, "slow timed out after")
}

func TestRunGivesUpAtRoundTripBound(t *testing.T) {
	// The model keeps asking for tools forever.
	var script []*llm.CompletionResponse
	for i := 0; i < 20; i++ {
		script = append(script, toolRequest(llm.ToolCall{
			ID:        fmt.Sprintf("call-%d", i),
			Name:      "calculator",
			Arguments: map[string]any{"expression": "1 + 1"},
		}))
	}
	client := &scriptedClient{script: script}
	loop := newTestLoop(client, Config{MaxRoundTrips: 3})

	state, err := loop.Run(context.Background(), userState("loop forever"))
	require.NoError(t, err)

	// 3 executed round-trips plus the user/system messages, ending in the
	// give-up answer with no dangling tool request before it.
	last := state.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, giveUpMessage, last.Content)
	assert.False(t, last.HasToolCalls())

	// 1 initial call + 3 tool rounds.
	assert.Len(t, client.requests, 4)

	// Every tool request that remains in the state has a matching result.
	for i, msg := range state {
		for _, call := range msg.ToolCalls {
			require.Greater(t, len(state), i+1, "tool request %s has no result", call.ID)
			assert.Equal(t, call.ID, state[i+1].ToolCallID)
		}
	}
}

func TestRunModelFailureReturnsError(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{nil}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("hello"))
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Contains(t, err.Error(), "model invocation failed")
}

func TestRunEmptyTerminalContentGetsFallback(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{answer("")}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("hello"))
	require.NoError(t, err)
	last := state.LastMessage()
	require.NotNil(t, last)
	assert.NotEmpty(t, last.Content)
}

func TestRunEmitsToolEvents(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(llm.ToolCall{ID: "call-1", Name: "calculator", Arguments: map[string]any{"expression": "2 ^ 5"}}),
		answer("32"),
	}}
	loop := newTestLoop(client, Config{})

	var mu sync.Mutex
	var events []model.TurnEvent
	_, err := loop.RunWithEvents(context.Background(), userState("2^5?"), func(e model.TurnEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, model.EventTypeToolStarted, events[0].Type)
	assert.Equal(t, "calculator", events[0].Tool)
	assert.Equal(t, model.EventTypeToolFinished, events[1].Type)
	assert.Equal(t, "success", events[1].Detail)
	assert.Equal(t, "call-1", events[1].CallID)
}

func TestRunAssignsMissingCallIDs(t *testing.T) {
	client := &scriptedClient{script: []*llm.CompletionResponse{
		toolRequest(llm.ToolCall{Name: "calculator", Arguments: map[string]any{"expression": "1"}}),
		answer("one"),
	}}
	loop := newTestLoop(client, Config{})

	state, err := loop.Run(context.Background(), userState("one"))
	require.NoError(t, err)
	require.Len(t, state, 5)

	id := state[2].ToolCalls[0].ID
	assert.NotEmpty(t, id)
	assert.Equal(t, id, state[3].ToolCallID)
}
