// Package agent implements the core reasoning/tool-execution loop.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/keystone-ai/research-agent/internal/llm"
	"github.com/keystone-ai/research-agent/internal/model"
	"github.com/keystone-ai/research-agent/internal/tool"
	"github.com/keystone-ai/research-agent/pkg/logger"
	"github.com/keystone-ai/research-agent/pkg/metrics"
)

// systemPrompt is injected once per thread, as the first message, when the
// history does not already carry one.
const systemPrompt = `You are a helpful research assistant with access to multiple tools.

**Available Tools:**
- tavily_search: Search the web for current information, news, recent events
- arxiv_search: Search academic papers for scientific research
- wikipedia: Get general knowledge, definitions, historical facts
- calculator: Perform mathematical calculations and statistics

**How to use tools:**
1. Think about what information you need
2. Choose the RIGHT tool based on the task
3. Use multiple tools if needed
4. Synthesize results into a clear answer

**Examples:**
- "Latest quantum computing news" -> use tavily_search
- "Academic papers on quantum error correction" -> use arxiv_search
- "What is quantum entanglement?" -> use wikipedia
- "Calculate average of [1,2,3,4,5]" -> use calculator

Be concise but thorough. Always cite sources when available.`

// giveUpMessage terminates a turn that exceeded the round-trip bound. It is
// a legitimate final answer and gets persisted like any other.
const giveUpMessage = "I wasn't able to complete this request within the allowed " +
	"number of research steps. Try narrowing the question or splitting it into parts."

// EventFunc receives incremental progress events while a turn runs. May be nil.
type EventFunc func(event model.TurnEvent)

// Config holds agent loop settings.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// MaxRoundTrips bounds the number of reasoning/tool round-trips per
	// turn. Exceeding it produces a give-up message, not an error.
	MaxRoundTrips int

	// ToolTimeout bounds each individual tool invocation.
	ToolTimeout time.Duration
}

// Loop drives the model to a terminal content-bearing answer, executing any
// tool calls it requests along the way.
type Loop struct {
	llm    llm.Client
	tools  *tool.Registry
	logger *logger.Logger
	cfg    Config
}

// NewLoop creates a new agent loop.
func NewLoop(client llm.Client, registry *tool.Registry, log *logger.Logger, cfg Config) *Loop {
	if cfg.MaxRoundTrips <= 0 {
		cfg.MaxRoundTrips = 10
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 15 * time.Second
	}
	return &Loop{
		llm:    client,
		tools:  registry,
		logger: log,
		cfg:    cfg,
	}
}

// Run executes the loop over the given history and returns the augmented
// state. The returned state always ends in a content-bearing assistant
// message; a model invocation failure returns the error with no partial
// state, so nothing gets persisted for the failed turn.
func (l *Loop) Run(ctx context.Context, state model.State) (model.State, error) {
	return l.RunWithEvents(ctx, state, nil)
}

// RunWithEvents is Run with incremental progress events. Streaming is layered
// over the loop; it does not change the final-state contract.
func (l *Loop) RunWithEvents(ctx context.Context, state model.State, onEvent EventFunc) (model.State, error) {
	if !state.HasSystemMessage() {
		state = append(model.State{{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Role:      model.RoleSystem,
			Content:   systemPrompt,
			CreatedAt: time.Now(),
		}}, state...)
	}

	toolRounds := 0
	for {
		resp, err := l.complete(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("model invocation failed: %w", err)
		}
		metrics.RecordLLMTokens(resp.Model, resp.TokensIn, resp.TokensOut)

		assistant := model.Message{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			CreatedAt: time.Now(),
		}
		for _, call := range resp.ToolCalls {
			id := call.ID
			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}
			assistant.ToolCalls = append(assistant.ToolCalls, model.ToolCall{
				ID:        id,
				Name:      call.Name,
				Arguments: call.Arguments,
			})
		}
		state = append(state, assistant)

		if !assistant.HasToolCalls() {
			metrics.TurnRoundTrips.Observe(float64(toolRounds + 1))
			if assistant.Content == "" {
				// A terminal answer must carry content.
				state[len(state)-1].Content = "I wasn't able to produce an answer for that. Could you rephrase?"
			}
			return state, nil
		}

		if toolRounds >= l.cfg.MaxRoundTrips {
			l.logger.Warn("round-trip bound exceeded",
				"rounds", toolRounds,
				"pending_calls", len(assistant.ToolCalls),
			)
			metrics.TurnRoundTrips.Observe(float64(toolRounds))
			// Replace the dangling tool request with an explicit give-up.
			state[len(state)-1] = model.Message{
				ID:        uuid.Must(uuid.NewV7()).String(),
				Role:      model.RoleAssistant,
				Content:   giveUpMessage,
				CreatedAt: time.Now(),
			}
			return state, nil
		}

		results := l.executeBatch(ctx, assistant.ToolCalls, onEvent)
		state = append(state, results...)
		toolRounds++
	}
}

// complete invokes the model with the full history and tool definitions.
func (l *Loop) complete(ctx context.Context, state model.State) (*llm.CompletionResponse, error) {
	req := &llm.CompletionRequest{
		Model: l.cfg.Model,
		Tools: l.toolDefinitions(),
	}

	for _, msg := range state {
		if msg.Role == model.RoleSystem {
			req.System = msg.Content
			continue
		}
		chatMsg := llm.ChatMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			chatMsg.ToolCalls = append(chatMsg.ToolCalls, llm.ToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			})
		}
		req.Messages = append(req.Messages, chatMsg)
	}

	return l.llm.Complete(ctx, req)
}

// executeBatch runs every tool call of one assistant message. Calls run
// concurrently, each under its own timeout, but results come back in call
// order with matching tool_call_ids: exactly one result per call, no missing,
// no extra. Failures become readable result messages, never errors.
func (l *Loop) executeBatch(ctx context.Context, calls []model.ToolCall, onEvent EventFunc) []model.Message {
	results := make([]model.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			emit(onEvent, model.TurnEvent{
				Type:      model.EventTypeToolStarted,
				Tool:      call.Name,
				CallID:    call.ID,
				CreatedAt: time.Now(),
			})

			start := time.Now()
			callCtx, cancel := context.WithTimeout(gctx, l.cfg.ToolTimeout)
			output, err := l.tools.Invoke(callCtx, call.Name, call.Arguments)
			cancel()

			status := "success"
			if err != nil {
				status = "error"
				l.logger.Warn("tool invocation failed",
					"tool", call.Name,
					"call_id", call.ID,
					"error", err,
				)
				if callCtx.Err() == context.DeadlineExceeded {
					output = fmt.Sprintf("Error: %s timed out after %s", call.Name, l.cfg.ToolTimeout)
					status = "timeout"
				}
			}
			metrics.RecordToolInvocation(call.Name, status, time.Since(start).Seconds())

			results[i] = model.Message{
				ID:         uuid.Must(uuid.NewV7()).String(),
				Role:       model.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				CreatedAt:  time.Now(),
			}

			emit(onEvent, model.TurnEvent{
				Type:      model.EventTypeToolFinished,
				Tool:      call.Name,
				CallID:    call.ID,
				Detail:    status,
				CreatedAt: time.Now(),
			})
			return nil
		})
	}
	// Workers never return errors; failures are encoded in result messages.
	_ = g.Wait()

	return results
}

func (l *Loop) toolDefinitions() []llm.ToolDefinition {
	tools := l.tools.List()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

func emit(onEvent EventFunc, event model.TurnEvent) {
	if onEvent != nil {
		onEvent(event)
	}
}
