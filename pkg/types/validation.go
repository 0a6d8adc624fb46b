package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength caps the rune length of a chat message body.
const MaxMessageLength = 2000

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks the shared id format used for accounts, sessions and
// profiles.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idPattern.MatchString(id)
}

// IsValidRole reports whether r is one of the four known roles.
func IsValidRole(r Role) bool {
	switch r {
	case RoleStudent, RoleMentor, RoleCompany, RoleAdmin:
		return true
	default:
		return false
	}
}

// ValidateMessageBody enforces the append preconditions: non-blank text
// within the length cap. The returned string is the trimmed body that gets
// persisted.
func ValidateMessageBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}
