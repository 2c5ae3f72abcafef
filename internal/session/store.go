// Package session holds the client-side canonical session: a single
// mutable slot written only by a successful reconciliation and by
// explicit sign-out, with the bearer token persisted through the OS
// keychain so it survives process restarts.
package session

import (
	"sync"

	"github.com/cryptopilot-dev/cryptopilot/internal/backend"
)

// Store is the single-slot canonical session cache
type Store struct {
	serverURL string
	tokens    TokenStore

	mu      sync.RWMutex
	current *backend.Session
}

// NewStore creates a session store keyed on the server URL. tokens may
// be nil to disable persistence (tests).
func NewStore(serverURL string, tokens TokenStore) *Store {
	return &Store{serverURL: serverURL, tokens: tokens}
}

// Set replaces the current session and persists its bearer token
func (s *Store) Set(session *backend.Session) error {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	if s.tokens != nil && session.Token != "" {
		return s.tokens.SaveToken(s.serverURL, session.Token)
	}
	return nil
}

// Current returns the cached session, or false when signed out
func (s *Store) Current() (*backend.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, true
}

// Token returns the persisted bearer token for this server
func (s *Store) Token() (string, error) {
	s.mu.RLock()
	if s.current != nil && s.current.Token != "" {
		token := s.current.Token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	if s.tokens == nil {
		return "", ErrNotAuthenticated
	}
	return s.tokens.LoadToken(s.serverURL)
}

// Clear drops the cached session and the persisted token
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if s.tokens != nil {
		return s.tokens.DeleteToken(s.serverURL)
	}
	return nil
}
