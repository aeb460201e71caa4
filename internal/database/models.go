package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the bun model for the users table.
// ResetPasswordToken and ResetPasswordExpiry are either both set or both NULL.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                  uuid.UUID  `bun:"id,pk,type:uuid"`
	Email               string     `bun:"email,notnull,unique"`
	PasswordHash        string     `bun:"password_hash,notnull"`
	ResetPasswordToken  *string    `bun:"reset_password_token"`
	ResetPasswordExpiry *time.Time `bun:"reset_password_expiry"`
	CreatedAt           time.Time  `bun:"created_at,notnull"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull"`
}
