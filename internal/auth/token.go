package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 48        // 48 bytes = 64 base64url chars
	ResetTokenExpiry = time.Hour // 1 hour expiry
)

// GenerateResetToken creates a cryptographically secure opaque token.
// The plaintext is handed to the user; only HashResetToken(token) is stored.
func GenerateResetToken() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashResetToken computes the SHA-256 digest stored in place of the token
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
