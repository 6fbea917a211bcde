package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		want       string
	}{
		{"addition", "2+2", "4"},
		{"precedence", "2 + 3 * 4", "14"},
		{"parentheses", "(2 + 3) * 4", "20"},
		{"division", "10 / 4", "2.5"},
		{"modulo", "10 % 3", "1"},
		{"power", "2 ^ 10", "1024"},
		{"power right assoc", "2 ^ 3 ^ 2", "512"},
		{"unary minus", "-5 + 3", "-2"},
		{"sqrt", "sqrt(144)", "12"},
		{"nested call", "sqrt(9 + 16)", "5"},
		{"cos zero", "cos(0)", "1"},
		{"mean of list", "mean([10, 20, 30])", "20"},
		{"mean variadic", "mean(1, 2, 3, 4)", "2.5"},
		{"median odd", "median([3, 1, 2])", "2"},
		{"median even", "median([1, 2, 3, 4])", "2.5"},
		{"stdev", "stdev([1, 3, 5])", "2"},
		{"scientific notation", "1.5e2 + 50", "200"},
		{"case insensitive function", "SQRT(4)", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"empty", ""},
		{"division by zero", "1 / 0"},
		{"modulo by zero", "1 % 0"},
		{"sqrt negative", "sqrt(-1)"},
		{"log non-positive", "log(0)"},
		{"stdev single value", "stdev([5])"},
		{"mean empty list", "mean([])"},
		{"unknown function", "frobnicate(1)"},
		{"bare identifier", "pi"},
		{"unbalanced parens", "(1 + 2"},
		{"trailing garbage", "1 + 2 )"},
		{"bare list result", "[1, 2, 3]"},
		{"list in addition", "[1, 2] + 3"},
		{"list in subtraction", "[1, 2] - 3"},
		{"list in multiplication", "3 * [1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expression)
			assert.Error(t, err)
		})
	}
}

func TestCalculatorHandler(t *testing.T) {
	calc := NewCalculator()
	require.Equal(t, "calculator", calc.Name)

	result, err := calc.Handler(context.Background(), map[string]any{"expression": "sqrt(16) + 1"})
	require.NoError(t, err)
	assert.Equal(t, "5", result)

	_, err = calc.Handler(context.Background(), map[string]any{})
	assert.Error(t, err)

	_, err = calc.Handler(context.Background(), map[string]any{"expression": 42})
	assert.Error(t, err)
}
