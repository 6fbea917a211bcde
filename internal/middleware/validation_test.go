package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTurnContent(t *testing.T) {
	assert.NoError(t, ValidateTurnContent("what is quantum entanglement?"))
	assert.NoError(t, ValidateTurnContent(strings.Repeat("a", 100000)))

	assert.Error(t, ValidateTurnContent(""))
	assert.Error(t, ValidateTurnContent(strings.Repeat("a", 100001)))
	assert.Error(t, ValidateTurnContent("bad \xff encoding"))
}

func TestValidateThreadID(t *testing.T) {
	assert.NoError(t, ValidateThreadID("thread-1"))
	assert.NoError(t, ValidateThreadID("0190a6b2-7a3e-7cc0-b3a5-2f1d7c9e4f10"))

	assert.Error(t, ValidateThreadID(""))
	assert.Error(t, ValidateThreadID(strings.Repeat("x", 129)))
	assert.Error(t, ValidateThreadID("has space"))
	assert.Error(t, ValidateThreadID("has/slash"))
	assert.Error(t, ValidateThreadID("has\ncontrol"))
	assert.Error(t, ValidateThreadID("bad\xff"))
}
