// Package authn implements the shared session authenticator (spec §4.2):
// extract a bearer/handshake credential, verify it, attach a User descriptor.
package authn

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/collabhub/realtime/internal/apperr"
	"github.com/collabhub/realtime/internal/domain"
)

// Verifier is the external Token Verifier collaborator (component A):
// validate a bearer credential and return a user descriptor, or fail.
// Implementations: *JWTVerifier (production), *MockVerifier (dev/test).
type Verifier interface {
	Verify(token string) (*domain.User, error)
}

// FromRequest extracts a bearer token from an HTTP Authorization header and
// verifies it. Used by request/response paths (identity passthrough is
// exempt; this is for any first-party HTTP endpoint the core exposes).
func FromRequest(v Verifier, r *http.Request) (*domain.User, *apperr.Error) {
	header := r.Header.Get("Authorization")
	token, ok := bearerToken(header)
	if !ok {
		return nil, apperr.New(apperr.CodeAuthRequired, "missing or malformed Authorization header")
	}
	user, err := v.Verify(token)
	if err != nil {
		return nil, apperr.New(apperr.CodeAuthFailed, err.Error())
	}
	return user, nil
}

// HandshakeCredential is the minimal shape needed to authenticate a duplex
// upgrade: a token carried in the handshake auth payload, falling back to a
// query parameter.
type HandshakeCredential struct {
	AuthToken  string // e.g. decoded from an `auth: {token: ...}` handshake payload
	QueryToken string
}

// FromHandshake authenticates a duplex upgrade handshake (spec §4.2).
func FromHandshake(v Verifier, cred HandshakeCredential) (*domain.User, *apperr.Error) {
	token := cred.AuthToken
	if token == "" {
		token = cred.QueryToken
	}
	if token == "" {
		return nil, apperr.New(apperr.CodeAuthRequired, "no token in handshake auth payload or query")
	}
	user, err := v.Verify(token)
	if err != nil {
		return nil, apperr.New(apperr.CodeAuthFailed, err.Error())
	}
	return user, nil
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// AllowedOriginsFromEnv parses a comma-separated origin list, falling back to
// defaults when unset. Grounded on the teacher's GetAllowedOriginsFromEnv.
func AllowedOriginsFromEnv(getenv func(string) string, key string, defaults []string) []string {
	raw := getenv(key)
	if raw == "" {
		return defaults
	}
	return strings.Split(raw, ",")
}

// OriginAllowed checks scheme+host equality against an allow-list, matching
// the teacher's CheckOrigin logic in hub.go.
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true // non-browser clients (tests, server-to-server)
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		allowedURL, err := url.Parse(a)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}
