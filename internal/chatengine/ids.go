package chatengine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/collabhub/realtime/internal/apperr"
)

// newID mints a server-assigned opaque identifier for a room or message.
func newID() string {
	return uuid.NewString()
}

// normalizeCode upper-cases and validates a caller-supplied room code
// against the forward-compatible 6-8 char alphanumeric shape (spec §4.3.2).
// The issued length is always 6; 7-8 are accepted on input only.
func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", apperr.New(apperr.CodeCodeRequired, "room code is required")
	}
	if len(code) < codeLength || len(code) > codeLength+2 {
		return "", apperr.New(apperr.CodeInvalidCodeFormat, "room code must be 6-8 characters")
	}
	for _, r := range code {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", r) {
			return "", apperr.New(apperr.CodeInvalidCodeFormat, "room code must be alphanumeric")
		}
	}
	return code, nil
}
