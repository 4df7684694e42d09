package videoengine

import "github.com/google/uuid"

// newID mints a server-assigned opaque identifier for a video room.
func newID() string {
	return uuid.NewString()
}

// newSocketID mints a per-connection identifier distinct from the user's
// identity, used for signaling routing (spec §4.4.3: "look up the
// VideoParticipant record to obtain the current socketId").
func newSocketID() string {
	return uuid.NewString()
}
