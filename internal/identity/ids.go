package identity

import "github.com/google/uuid"

// newAccountID generates a server-assigned subject identifier, matching the
// "server-generated IDs" convention used across internal/domain and
// internal/store.
func newAccountID() string {
	return uuid.NewString()
}
