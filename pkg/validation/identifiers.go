package validation

import (
	"errors"
	"fmt"
)

// MaxIdentifierLength bounds every identifier accepted by ValidateIdentifier
const MaxIdentifierLength = 128

// ErrInvalidIdentifier is returned for empty, overlong or malformed identifiers
var ErrInvalidIdentifier = errors.New("invalid identifier")

// IdentifierKind names the kind of identifier being validated in errors
type IdentifierKind string

const (
	KindCorrelationID  IdentifierKind = "correlation id"
	KindTaskID         IdentifierKind = "task id"
	KindTaskInstanceID IdentifierKind = "task instance id"
	KindGroupID        IdentifierKind = "group id"
	KindBranchID       IdentifierKind = "branch id"
)

// IsValidIdentifierChar checks if a character is valid for identifiers
// (alphanumeric, hyphen, underscore, dot or colon).
func IsValidIdentifierChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '_' || ch == '.' || ch == ':'
}

// ValidateIdentifier checks id as an identifier of the given kind
func ValidateIdentifier(kind IdentifierKind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidIdentifier, kind)
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidIdentifier, kind, MaxIdentifierLength)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, id)
	}
	for i, ch := range id {
		if !IsValidIdentifierChar(ch) {
			return fmt.Errorf("%w: %s %q has invalid character %q at %d", ErrInvalidIdentifier, kind, id, ch, i)
		}
	}
	return nil
}
