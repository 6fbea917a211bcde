package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateTurnContent validates the text of one user turn.
func ValidateTurnContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateThreadID validates a thread ID. Thread IDs are opaque strings
// chosen by clients, so only length and encoding are constrained.
func ValidateThreadID(id string) error {
	if len(id) == 0 {
		return errors.New("thread ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("thread ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("thread ID must be valid UTF-8")
	}
	for _, c := range id {
		if c == '/' || c == ' ' || c < 0x20 {
			return errors.New("thread ID contains invalid characters")
		}
	}
	return nil
}
