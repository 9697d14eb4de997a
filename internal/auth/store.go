// Package auth holds the AdGuard DNS credentials for the lifetime of the
// process and exchanges the refresh token for new access tokens.
package auth

import (
	"sync"

	"dnsmedic/internal/config"
)

// Credentials is a snapshot of the tokens held by a CredentialStore
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// CredentialStore holds the current bearer access token and the refresh
// token for a single account. Only the Refresher writes to it after startup.
type CredentialStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// NewCredentialStore creates a store seeded from startup configuration.
// Empty values are accepted here and reported when first needed.
func NewCredentialStore(accessToken, refreshToken string) *CredentialStore {
	return &CredentialStore{
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// AccessToken returns the current access token
func (s *CredentialStore) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.accessToken == "" {
		return "", config.Missing("adguard.accessToken")
	}
	return s.accessToken, nil
}

// SetAccessToken replaces the access token
func (s *CredentialStore) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// RefreshToken returns the refresh token
func (s *CredentialStore) RefreshToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.refreshToken == "" {
		return "", config.Missing("adguard.refreshToken")
	}
	return s.refreshToken, nil
}

// SetRefreshToken stores a rotated refresh token. Empty values are ignored
// so a provider that omits the field keeps the existing token.
func (s *CredentialStore) SetRefreshToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.refreshToken = token
	s.mu.Unlock()
}

// Snapshot returns a copy of both tokens
func (s *CredentialStore) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Credentials{AccessToken: s.accessToken, RefreshToken: s.refreshToken}
}
