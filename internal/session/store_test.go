package session

import (
	"errors"
	"testing"

	"github.com/cryptopilot-dev/cryptopilot/internal/backend"
)

// memoryTokenStore is an in-memory TokenStore for tests
type memoryTokenStore struct {
	tokens map[string]string
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]string)}
}

func (m *memoryTokenStore) SaveToken(serverURL, token string) error {
	m.tokens[serverURL] = token
	return nil
}

func (m *memoryTokenStore) LoadToken(serverURL string) (string, error) {
	token, ok := m.tokens[serverURL]
	if !ok {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

func (m *memoryTokenStore) DeleteToken(serverURL string) error {
	delete(m.tokens, serverURL)
	return nil
}

const testServerURL = "https://api.acme.dev"

func TestStore_SetPersistsToken(t *testing.T) {
	tokens := newMemoryTokenStore()
	store := NewStore(testServerURL, tokens)

	session := &backend.Session{UserID: "user-1", Username: "alice", Token: "jwt-token"}
	if err := store.Set(session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current, ok := store.Current()
	if !ok || current.Username != "alice" {
		t.Errorf("current = %+v, ok = %v", current, ok)
	}

	if tokens.tokens[testServerURL] != "jwt-token" {
		t.Error("bearer token was not persisted")
	}
}

func TestStore_TokenFallsBackToPersisted(t *testing.T) {
	tokens := newMemoryTokenStore()
	tokens.tokens[testServerURL] = "persisted-token"

	// Fresh store (new process) with no cached session
	store := NewStore(testServerURL, tokens)

	token, err := store.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "persisted-token" {
		t.Errorf("token = %q, want persisted token", token)
	}
}

func TestStore_TokenPrefersCachedSession(t *testing.T) {
	tokens := newMemoryTokenStore()
	tokens.tokens[testServerURL] = "stale-token"

	store := NewStore(testServerURL, tokens)
	if err := store.Set(&backend.Session{Token: "fresh-token"}); err != nil {
		t.Fatal(err)
	}

	token, err := store.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q, want cached session token", token)
	}
}

func TestStore_ClearDropsSessionAndToken(t *testing.T) {
	tokens := newMemoryTokenStore()
	store := NewStore(testServerURL, tokens)

	if err := store.Set(&backend.Session{Token: "jwt-token"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.Current(); ok {
		t.Error("session should be gone after Clear")
	}
	if _, err := store.Token(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestStore_NilTokenStore(t *testing.T) {
	store := NewStore(testServerURL, nil)

	if err := store.Set(&backend.Session{Token: "jwt-token"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Token(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}
