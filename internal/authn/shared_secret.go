package authn

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/collabhub/realtime/internal/domain"
)

// sharedSecretClaims mirrors the identity service's own token shape
// (internal/identity/tokens.go): subject plus the same display fields the
// Auth0-issued token carries, so both verifiers hand the engines an
// identical domain.User.
type sharedSecretClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SharedSecretVerifier validates HS256 tokens minted by this repo's own
// identity service, the self-hosted alternative to JWTVerifier's Auth0 JWKS
// path (spec §4.2 treats the token verifier as a pluggable collaborator).
type SharedSecretVerifier struct {
	secret []byte
}

// NewSharedSecretVerifier builds a verifier bound to the identity service's
// signing secret.
func NewSharedSecretVerifier(secret string) *SharedSecretVerifier {
	return &SharedSecretVerifier{secret: []byte(secret)}
}

// Verify implements Verifier.
func (v *SharedSecretVerifier) Verify(tokenString string) (*domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sharedSecretClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(*sharedSecretClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return &domain.User{
		UserID:      domain.UserID(claims.Subject),
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
