package tool

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// NewCalculator returns the arithmetic/statistics tool. Expressions are
// evaluated by a closed recursive-descent parser: only numbers, the basic
// operators, and the whitelisted functions below are reachable.
func NewCalculator() *Tool {
	return &Tool{
		Name: "calculator",
		Description: "Perform mathematical calculations and statistics. " +
			"Supports +, -, *, /, %, ^, parentheses, and the functions " +
			"sqrt, sin, cos, tan, log, mean, median, stdev. " +
			"Lists use square brackets, e.g. mean([10, 20, 30]).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Mathematical expression to evaluate, e.g. \"sqrt(144)\" or \"mean([1, 2, 3])\"",
				},
			},
			"required": []string{"expression"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			expression, err := stringArg(args, "expression")
			if err != nil {
				return "", err
			}

			result, err := Evaluate(expression)
			if err != nil {
				return "", fmt.Errorf("evaluating expression: %w", err)
			}
			return result, nil
		},
	}
}

// Evaluate parses and evaluates a mathematical expression, returning the
// result formatted as text.
func Evaluate(expression string) (string, error) {
	p := &parser{input: expression}
	v, err := p.parseExpr()
	if err != nil {
		return "", err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return "", fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}

	n, ok := v.(float64)
	if !ok {
		return "", fmt.Errorf("expression must reduce to a number, got a list")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "", fmt.Errorf("result is not a finite number")
	}
	return formatNumber(n), nil
}

// value is either a float64 or a []float64 (list literal).
type value any

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) parseExpr() (value, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left, err = applyBinary(left, right, func(a, b float64) float64 { return a + b })
			if err != nil {
				return nil, err
			}
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left, err = applyBinary(left, right, func(a, b float64) float64 { return a - b })
			if err != nil {
				return nil, err
			}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left, err = applyBinary(left, right, func(a, b float64) float64 { return a * b })
			if err != nil {
				return nil, err
			}
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			b, err := asNumber(right)
			if err != nil {
				return nil, err
			}
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			a, err := asNumber(left)
			if err != nil {
				return nil, err
			}
			left = a / b
		case '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			b, err := asNumber(right)
			if err != nil {
				return nil, err
			}
			if b == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			a, err := asNumber(left)
			if err != nil {
				return nil, err
			}
			left = math.Mod(a, b)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (value, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n, err := asNumber(v)
		if err != nil {
			return nil, err
		}
		return -n, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (value, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	// Right-associative.
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	a, err := asNumber(base)
	if err != nil {
		return nil, err
	}
	b, err := asNumber(exp)
	if err != nil {
		return nil, err
	}
	return math.Pow(a, b), nil
}

func (p *parser) parsePrimary() (value, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil

	case c == '[':
		return p.parseList()

	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()

	case unicode.IsLetter(rune(c)):
		return p.parseCall()

	case c == 0:
		return nil, fmt.Errorf("unexpected end of expression")

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", c, p.pos)
	}
}

func (p *parser) parseList() (value, error) {
	p.pos++ // consume '['
	var items []float64
	if p.peek() == ']' {
		p.pos++
		return items, nil
	}
	for {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n, err := asNumber(v)
		if err != nil {
			return nil, err
		}
		items = append(items, n)

		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return items, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' in list")
		}
	}
}

func (p *parser) parseNumber() (value, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' ||
			((c == '+' || c == '-') && p.pos > start && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return n, nil
}

func (p *parser) parseCall() (value, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(rune(p.input[p.pos])) || p.input[p.pos] == '_') {
		p.pos++
	}
	name := strings.ToLower(p.input[start:p.pos])

	if p.peek() != '(' {
		return nil, fmt.Errorf("unknown identifier %q (functions require parentheses)", name)
	}
	p.pos++ // consume '('

	var args []value
	if p.peek() != ')' {
		for {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
	}
	if p.peek() != ')' {
		return nil, fmt.Errorf("missing closing parenthesis after %s(", name)
	}
	p.pos++

	return callFunction(name, args)
}

func callFunction(name string, args []value) (value, error) {
	switch name {
	case "sqrt", "sin", "cos", "tan", "log":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", name)
		}
		n, err := asNumber(args[0])
		if err != nil {
			return nil, err
		}
		switch name {
		case "sqrt":
			if n < 0 {
				return nil, fmt.Errorf("sqrt of negative number")
			}
			return math.Sqrt(n), nil
		case "sin":
			return math.Sin(n), nil
		case "cos":
			return math.Cos(n), nil
		case "tan":
			return math.Tan(n), nil
		default:
			if n <= 0 {
				return nil, fmt.Errorf("log of non-positive number")
			}
			return math.Log(n), nil
		}

	case "mean", "median", "stdev":
		nums, err := gatherNumbers(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		switch name {
		case "mean":
			if len(nums) == 0 {
				return nil, fmt.Errorf("mean of empty list")
			}
			return mean(nums), nil
		case "median":
			if len(nums) == 0 {
				return nil, fmt.Errorf("median of empty list")
			}
			return median(nums), nil
		default:
			if len(nums) < 2 {
				return nil, fmt.Errorf("stdev requires at least two values")
			}
			return stdev(nums), nil
		}

	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

// gatherNumbers flattens function arguments: either a single list literal or
// a variadic sequence of numbers.
func gatherNumbers(args []value) ([]float64, error) {
	var nums []float64
	for _, a := range args {
		switch v := a.(type) {
		case float64:
			nums = append(nums, v)
		case []float64:
			nums = append(nums, v...)
		default:
			return nil, fmt.Errorf("unsupported argument type")
		}
	}
	return nums, nil
}

// applyBinary coerces both operands to numbers and applies op. List operands
// are rejected; they are only valid as whole function arguments.
func applyBinary(left, right value, op func(a, b float64) float64) (value, error) {
	a, err := asNumber(left)
	if err != nil {
		return nil, err
	}
	b, err := asNumber(right)
	if err != nil {
		return nil, err
	}
	return op(a, b), nil
}

func asNumber(v value) (float64, error) {
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected a number, got a list")
	}
	return n, nil
}

func mean(nums []float64) float64 {
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

func median(nums []float64) float64 {
	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// stdev is the sample standard deviation.
func stdev(nums []float64) float64 {
	m := mean(nums)
	var sum float64
	for _, n := range nums {
		d := n - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(nums)-1))
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
