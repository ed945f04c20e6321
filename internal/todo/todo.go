// Package todo implements the ordered todo collection: value validation,
// position assignment, and the reorder/completion/edit operations.
package todo

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/todos.page/internal/platform/errors"
)

// MaxValueLength caps the todo text length in characters.
const MaxValueLength = 50

// ValidateValue checks that value is non-empty and at most MaxValueLength
// characters after trimming surrounding whitespace.
func ValidateValue(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return apperrors.New(apperrors.CodeTodoValueEmpty, "todo value is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxValueLength {
		return apperrors.WithMetadata(
			apperrors.CodeTodoValueTooLong,
			"todo value exceeds maximum length",
			map[string]string{"max": "50"},
		)
	}
	return nil
}

// DisplayID maps a stored todo id to its external representation. The
// mapping is pure: identifiers are already URL-safe lowercase base32, so
// display form only normalizes incidental whitespace and case.
func DisplayID(storedID string) string {
	return strings.ToLower(strings.TrimSpace(storedID))
}

// Patch describes a partial todo update. Nil fields were not supplied by
// the caller; a non-nil pointer to a zero value is a meaningful request
// (done=false clears the completion timestamp).
type Patch struct {
	Position *int
	Done     *bool
	Value    *string
}

// Empty reports whether the patch carries no mutations at all.
func (p Patch) Empty() bool {
	return p.Position == nil && p.Done == nil && p.Value == nil
}
