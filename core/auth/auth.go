// Package auth hashes and verifies the shared admin key that guards the
// management endpoints.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashKey generates a bcrypt hash of the admin key, suitable for
// ADMIN_KEY_HASH.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(bytes), nil
}

// CheckKey reports whether key matches the stored bcrypt hash.
func CheckKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
