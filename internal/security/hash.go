package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashText hashes a secret with bcrypt at the default cost.
func HashText(text string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(text), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("security: hash: %w", err)
	}
	return string(hash), nil
}

// VerifyHashedText reports whether text matches a bcrypt hash.
func VerifyHashedText(text, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(text)) == nil
}
