package session

import (
	"context"
	"time"
)

// Store persists breadcrumbs under session IDs
type Store interface {
	// Save stores b under id for ttl
	Save(ctx context.Context, id string, b Breadcrumb, ttl time.Duration) error
	// Load returns ErrSessionNotFound for unknown or expired IDs
	Load(ctx context.Context, id string) (Breadcrumb, error)
	// Delete is a no-op for unknown IDs
	Delete(ctx context.Context, id string) error
	// DeleteAll removes every session whose breadcrumb is email
	DeleteAll(ctx context.Context, email string) error
}
