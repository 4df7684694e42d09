package authn

import "github.com/collabhub/realtime/internal/domain"

// Anonymous synthesizes the video engine's documented anonymous admission
// (spec §4.2/§4.4.1): userId = "anonymous_" + sessionID, displayName = "Guest
// <sid-prefix>".
func Anonymous(sessionID string) *domain.User {
	prefix := sessionID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return &domain.User{
		UserID:      domain.UserID("anonymous_" + sessionID),
		DisplayName: "Guest " + prefix,
		Anonymous:   true,
	}
}
