package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced to the request boundary. None of these are
// retryable: the same inputs always produce the same outcome.
var (
	// ErrNotFound means a referenced item, category or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness constraint was violated, e.g. a
	// duplicate category name or email address.
	ErrConflict = errors.New("already exists")
)

// ValidationError rejects a proposed mutation with a field-level message.
// The triggering transaction is rolled back, nothing is committed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AsValidationError returns the wrapped *ValidationError, or nil.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite exposes these only through the message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
