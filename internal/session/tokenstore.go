package session

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "cryptopilot-cli"

// ErrNotAuthenticated means no bearer token is stored for the server
var ErrNotAuthenticated = errors.New("not authenticated. Please run 'cryptopilot login' first")

// TokenStore defines the interface for token storage operations.
// This allows us to mock the keyring in tests.
type TokenStore interface {
	SaveToken(serverURL, token string) error
	LoadToken(serverURL string) (string, error)
	DeleteToken(serverURL string) error
}

// KeyringStore persists bearer tokens in the OS keychain/credential
// manager, one entry per server
type KeyringStore struct{}

func keyringKey(serverURL string) string {
	return fmt.Sprintf("bearer-%s", serverURL)
}

// SaveToken persists the bearer token securely
func (KeyringStore) SaveToken(serverURL, token string) error {
	if err := keyring.Set(keyringService, keyringKey(serverURL), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the bearer token
func (KeyringStore) LoadToken(serverURL string) (string, error) {
	token, err := keyring.Get(keyringService, keyringKey(serverURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotAuthenticated
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the bearer token
func (KeyringStore) DeleteToken(serverURL string) error {
	if err := keyring.Delete(keyringService, keyringKey(serverURL)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
