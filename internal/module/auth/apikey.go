package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix is the prefix for gateway API keys.
	APIKeyPrefix = "sg-"
	// APIKeyRandomLength is the length of the random part of the key.
	APIKeyRandomLength = 48
	// APIKeyPrefixDisplayLength is the length of the key prefix to display.
	APIKeyPrefixDisplayLength = 11
)

// GenerateAPIKey generates a new gateway API key.
// Returns the full key, its SHA-256 hash, and a display prefix.
func GenerateAPIKey() (key string, hash string, prefix string, err error) {
	randomBytes := make([]byte, APIKeyRandomLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("generate random bytes: %w", err)
	}

	randomPart := hex.EncodeToString(randomBytes)[:APIKeyRandomLength]
	key = APIKeyPrefix + randomPart
	hash = HashAPIKey(key)
	prefix = GetAPIKeyPrefix(key)

	return key, hash, prefix, nil
}

// HashAPIKey returns the SHA-256 hash of an API key. The hash is the
// stored lookup column, so it has to be deterministic.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// GetAPIKeyPrefix returns the display prefix of an API key.
func GetAPIKeyPrefix(key string) string {
	if len(key) <= APIKeyPrefixDisplayLength {
		return key
	}
	return key[:APIKeyPrefixDisplayLength]
}

// IsValidAPIKeyFormat checks if a string looks like a valid API key format.
func IsValidAPIKeyFormat(key string) bool {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return false
	}
	return len(key) == len(APIKeyPrefix)+APIKeyRandomLength
}
