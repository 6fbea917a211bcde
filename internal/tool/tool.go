// Package tool defines the research tools available to the agent.
package tool

import (
	"context"
	"fmt"
	"sort"
)

// Tool represents a callable tool adapter. Description and Parameters are
// exposed to the model so it can choose the right tool; Handler performs the
// actual work.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds the closed set of available tools, keyed by name.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry. A later registration with the same
// name replaces the earlier one.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]*Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Invoke runs the named tool and returns its textual result. Failures never
// cross this boundary as errors the caller must unwrap: an unknown tool name
// or a handler failure both come back as a readable error string with a
// non-nil error for observability.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s", name, r.toolNames()),
			fmt.Errorf("unknown tool: %s", name)
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", name, err), err
	}
	return result, nil
}

func (r *Registry) toolNames() string {
	var s string
	for i, t := range r.List() {
		if i > 0 {
			s += ", "
		}
		s += t.Name
	}
	return s
}

// stringArg extracts a required string argument from a tool call's argument
// map, tolerating the model omitting it or sending the wrong type.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("argument %q cannot be empty", key)
	}
	return s, nil
}
