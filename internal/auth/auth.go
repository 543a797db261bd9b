// Package auth is a minimal bearer-token issuer: just enough to attribute
// an HTTP request to a user id. Session/token lifecycle and credential
// management are not this exchange's hard problem; this package exists so
// cmd/server is runnable end to end without pulling in a real identity
// provider.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"spotx/internal/models"
	"spotx/internal/store"
)

// ErrInvalidCredentials is returned by Login on an unknown email or a
// password mismatch.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrInvalidToken is returned by Authenticate for an unknown or revoked
// token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Issuer holds credential hashes and live sessions in memory. It is not a
// substitute for a real identity provider — there is no expiry, rotation,
// or persistence across restarts.
type Issuer struct {
	store *store.Store

	mu           sync.RWMutex
	passwordHash map[int64][]byte // userID -> bcrypt hash
	sessions     map[string]int64 // token -> userID
}

// NewIssuer constructs an Issuer backed by s for user lookups.
func NewIssuer(s *store.Store) *Issuer {
	return &Issuer{
		store:        s,
		passwordHash: make(map[int64][]byte),
		sessions:     make(map[string]int64),
	}
}

// SetPassword registers a bcrypt hash for userID, used by account
// provisioning (there is no self-service signup endpoint).
func (i *Issuer) SetPassword(userID int64, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.passwordHash[userID] = hash
	return nil
}

// Login verifies email/password and issues a new bearer token.
func (i *Issuer) Login(email, password string) (string, *models.User, error) {
	user, err := i.store.GetUserByEmail(email)
	if err != nil {
		if err == store.ErrNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	i.mu.RLock()
	hash, ok := i.passwordHash[user.ID]
	i.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", nil, err
	}

	i.mu.Lock()
	i.sessions[token] = user.ID
	i.mu.Unlock()

	return token, user, nil
}

// Logout revokes a token. Revoking an unknown token is a no-op.
func (i *Issuer) Logout(token string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.sessions, token)
}

// Authenticate resolves a bearer token to its owning user.
func (i *Issuer) Authenticate(token string) (*models.User, error) {
	i.mu.RLock()
	userID, ok := i.sessions[token]
	i.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return i.store.GetUser(userID)
}

func newToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
