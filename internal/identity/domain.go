// Package identity implements the identity service's external contract
// (spec §1: "explicitly out of scope ... the core only consumes a token
// verifier capability"). This package is that provider: a self-contained
// register/login/verify surface the core's authn.Verifier consumes, so the
// system runs end-to-end without depending on a third-party identity
// platform.
//
// Grounded on the teacher's internal/v1/auth package (Auth0 JWKS validation)
// generalized to also mint tokens locally, and on internal/v1/session's
// mutex-protected-registry idiom for the account store.
package identity

import "time"

// Account is a locally registered identity. Passwords are never stored in
// the clear; PasswordHash is a bcrypt digest.
type Account struct {
	UserID       string
	Email        string
	DisplayName  string
	PasswordHash string // empty for accounts provisioned via the Google stub
	CreatedAt    time.Time
}
