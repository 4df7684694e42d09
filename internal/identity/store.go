package identity

import (
	"sync"

	"k8s.io/utils/set"
)

// AccountStore persists registered accounts, keyed by email. Grounded on the
// teacher's internal/v1/session.Hub mutex-protected-map shape, generalized
// from sessions to accounts.
type AccountStore struct {
	mu       sync.RWMutex
	byEmail  map[string]*Account
	byUserID map[string]*Account

	// revoked holds the jti of every token a client has explicitly logged
	// out, using k8s.io/utils/set the same way the rest of this codebase's
	// retrieved pack uses it for membership-only collections.
	revoked set.Set[string]
}

// NewAccountStore builds an empty, in-process AccountStore. There is no
// durable identity store in this contract: spec.md treats the identity
// provider itself as an external collaborator, so this registry is
// intentionally process-lifetime only, not backed by store.Store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byEmail:  make(map[string]*Account),
		byUserID: make(map[string]*Account),
		revoked:  set.New[string](),
	}
}

// Create registers a new account. Returns false if the email is already taken.
func (s *AccountStore) Create(acc *Account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[acc.Email]; exists {
		return false
	}
	s.byEmail[acc.Email] = acc
	s.byUserID[acc.UserID] = acc
	return true
}

// ByEmail looks up an account by its login email.
func (s *AccountStore) ByEmail(email string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byEmail[email]
	return acc, ok
}

// ByUserID looks up an account by its subject identifier.
func (s *AccountStore) ByUserID(userID string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byUserID[userID]
	return acc, ok
}

// Revoke marks a token id as logged out.
func (s *AccountStore) Revoke(jti string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked.Insert(jti)
}

// IsRevoked reports whether a token id was previously logged out.
func (s *AccountStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revoked.Has(jti)
}
