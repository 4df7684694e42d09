package authn

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/collabhub/realtime/internal/domain"
)

// MockVerifier decodes a JWT's payload segment without checking its
// signature. It exists only for local development and tests (SKIP_AUTH=true),
// mirroring the teacher's MockValidator in internal/v1/auth/validator.go.
type MockVerifier struct{}

type mockClaims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// Verify implements Verifier. A malformed or empty token still succeeds,
// falling back to a fixed dev identity, since the mock's purpose is to let
// local development proceed without a real identity provider.
func (MockVerifier) Verify(token string) (*domain.User, error) {
	claims := mockClaims{
		Subject: "dev-user-123",
		Name:    "Dev User",
		Email:   "dev@example.com",
	}

	parts := strings.Split(token, ".")
	if len(parts) == 3 {
		if decoded, err := decodeSegment(parts[1]); err == nil {
			var parsed mockClaims
			if json.Unmarshal(decoded, &parsed) == nil {
				if parsed.Subject != "" {
					claims.Subject = parsed.Subject
				}
				if parsed.Name != "" {
					claims.Name = parsed.Name
				}
				if parsed.Email != "" {
					claims.Email = parsed.Email
				}
			}
		}
	}

	return &domain.User{
		UserID:      domain.UserID(claims.Subject),
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}

func decodeSegment(seg string) ([]byte, error) {
	if seg == "" {
		return nil, errors.New("empty segment")
	}
	return base64.RawURLEncoding.DecodeString(seg)
}
