// Package auth covers password hashing and bearer-token issuance for the
// user routes.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored hash. Bcrypt is the
// current format; the legacy "salt$hex(sha256(salt+password))" format is
// still accepted so rows written before the migration keep working until
// fixpasswords rewrites them.
func CheckPassword(password, stored string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return checkLegacyPassword(password, stored)
}

// IsLegacyHash reports whether a stored hash is not yet bcrypt.
func IsLegacyHash(stored string) bool {
	return !strings.HasPrefix(stored, "$2a$") && !strings.HasPrefix(stored, "$2b$") && !strings.HasPrefix(stored, "$2y$")
}

func checkLegacyPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false
	}
	h := sha256.Sum256([]byte(parts[0] + password))
	want := hex.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(parts[1])) == 1
}
