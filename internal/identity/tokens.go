package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL bounds the lifetime of a minted session token.
const tokenTTL = 24 * time.Hour

// issuedClaims is the wire shape of every token this service mints, matching
// the fields authn.SharedSecretVerifier expects back.
type issuedClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and inspects this service's own HS256 session tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer builds a TokenIssuer bound to the signing secret also
// handed to authn.SharedSecretVerifier, so tokens minted here verify there.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue mints a signed token for acc, returning the token string and its jti
// (needed by Logout to revoke it later).
func (i *TokenIssuer) Issue(acc *Account) (token string, jti string, err error) {
	jti = uuid.NewString()
	now := time.Now()
	claims := issuedClaims{
		Name:  acc.DisplayName,
		Email: acc.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}

// Inspect parses token without requiring a valid signature check on the
// caller's behalf being repeated elsewhere — used by /auth/verify and
// /auth/logout, which need the jti and subject already present in the token
// they were handed.
func (i *TokenIssuer) Inspect(token string) (*issuedClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &issuedClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	claims, ok := parsed.Claims.(*issuedClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}
