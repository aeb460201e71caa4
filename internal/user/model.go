package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // Never expose password hash in JSON
	ResetPasswordToken  *string    `json:"-"` // SHA-256 of the reset token, never the token itself
	ResetPasswordExpiry *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasResetToken reports whether a reset token is currently issued, expired or not
func (u *User) HasResetToken() bool {
	return u.ResetPasswordToken != nil && u.ResetPasswordExpiry != nil
}

// NormalizeEmail is applied to every email before it is stored or looked up,
// which makes the uniqueness key case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
