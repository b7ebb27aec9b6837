// Package auth verifies the admin API key presented on admin requests.
package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashKey hashes an admin key using bcrypt with the default cost. Operators
// can store the hash instead of the raw key.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// KeyVerifier checks presented admin keys against either a bcrypt hash or,
// when no hash is configured, a plaintext key in constant time.
type KeyVerifier struct {
	hash string
	key  string
}

func NewKeyVerifier(hash, key string) *KeyVerifier {
	return &KeyVerifier{hash: hash, key: key}
}

// Verify reports whether the presented key is valid.
func (v *KeyVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	if v.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(presented)) == nil
	}
	if v.key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.key), []byte(presented)) == 1
}
