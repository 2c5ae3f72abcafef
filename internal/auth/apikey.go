package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const apiKeyPrefix = "cp_"

// GenerateAPIKey creates a new API key. It returns the plaintext key
// (shown to the user exactly once), its display prefix, and the SHA-256
// hash that gets persisted.
func GenerateAPIKey() (key, prefix, hash string, err error) {
	raw := make([]byte, 24)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to generate API key: %w", err)
	}

	key = apiKeyPrefix + hex.EncodeToString(raw)
	prefix = key[:len(apiKeyPrefix)+5]
	hash = HashAPIKey(key)
	return key, prefix, hash, nil
}

// HashAPIKey returns the hex SHA-256 digest of a plaintext key
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey compares a plaintext key against a stored hash in
// constant time
func VerifyAPIKey(key, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(key)), []byte(hash)) == 1
}
