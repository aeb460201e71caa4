// Package session keeps the authenticated identity across requests.
//
// The browser holds a PASETO-sealed session ID; the ID maps to a breadcrumb
// (the user's email) in a server-side store.
package session

import (
	"context"
	"errors"

	"github.com/redmonkez12/authman/internal/user"
)

var (
	ErrInvalidBreadcrumb = errors.New("invalid session breadcrumb")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidCookie     = errors.New("invalid session cookie")
)

// Breadcrumb is the minimal identity persisted in a session
type Breadcrumb string

// Principal is the identity attached to an authenticated request
type Principal struct {
	Email string
}

// Serialize reduces a user to its breadcrumb
func Serialize(u *user.User) Breadcrumb {
	return Breadcrumb(u.Email)
}

// Deserialize rebuilds the principal from a breadcrumb.
// The store is not consulted, so a principal may outlive its user row.
func Deserialize(b Breadcrumb) (*Principal, error) {
	if b == "" {
		return nil, ErrInvalidBreadcrumb
	}
	return &Principal{Email: string(b)}, nil
}

// IsAuthenticated reports whether p identifies a user
func IsAuthenticated(p *Principal) bool {
	return p != nil && p.Email != ""
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal of the request, or nil for anonymous requests
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}
