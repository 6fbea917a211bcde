package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "echo",
		Description: "echoes its input",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	})
	r.Register(&Tool{
		Name:        "boom",
		Description: "always fails",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("backend unavailable")
		},
	})
	return r
}

func TestRegistryListSorted(t *testing.T) {
	r := newTestRegistry()
	tools := r.List()
	require.Len(t, tools, 2)
	assert.Equal(t, "boom", tools[0].Name)
	assert.Equal(t, "echo", tools[1].Name)
}

func TestRegistryInvoke(t *testing.T) {
	r := newTestRegistry()

	result, err := r.Invoke(context.Background(), "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistryInvokeUnknownTool(t *testing.T) {
	r := newTestRegistry()

	result, err := r.Invoke(context.Background(), "nope", nil)
	assert.Error(t, err)
	// The text is what the model sees; it must name the tool and the
	// alternatives so the model can self-correct.
	assert.Contains(t, result, `unknown tool "nope"`)
	assert.Contains(t, result, "boom, echo")
}

func TestRegistryInvokeHandlerFailure(t *testing.T) {
	r := newTestRegistry()

	result, err := r.Invoke(context.Background(), "boom", nil)
	assert.Error(t, err)
	assert.Equal(t, "Error executing boom: backend unavailable", result)
}

func TestStringArg(t *testing.T) {
	_, err := stringArg(map[string]any{}, "query")
	assert.Error(t, err)

	_, err = stringArg(map[string]any{"query": 7}, "query")
	assert.Error(t, err)

	_, err = stringArg(map[string]any{"query": ""}, "query")
	assert.Error(t, err)

	s, err := stringArg(map[string]any{"query": "ok"}, "query")
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
}
