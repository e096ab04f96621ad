package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken returns the hex SHA-256 of a refresh token. Sessions store the hash
// and are looked up by it on refresh.
func HashRefreshToken(token string) string { return HashSecret(token) }

// HashSecret is the one-way hash used for stored refresh and password reset tokens.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretHashEqual compares the hash of provided against storedHash in constant time.
// An empty provided secret never matches.
func SecretHashEqual(provided, storedHash string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashSecret(provided)), []byte(storedHash)) == 1
}
