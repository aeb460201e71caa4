package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/user"
)

// Manager ties the session cookie to the session store
type Manager struct {
	store      Store
	codec      *Codec
	cookieName string
	secure     bool
}

func NewManager(store Store, codec *Codec, cookieName string, secure bool) *Manager {
	return &Manager{
		store:      store,
		codec:      codec,
		cookieName: cookieName,
		secure:     secure,
	}
}

// Establish starts a fresh session for u and sets the session cookie.
// A session presented on the request is dropped first.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, u *user.User) error {
	if id, ok := m.sessionID(r); ok {
		if err := m.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to drop previous session: %w", err)
		}
	}

	id := uuid.NewString()
	if err := m.store.Save(ctx, id, Serialize(u), m.codec.TTL()); err != nil {
		return err
	}

	m.setCookie(w, m.codec.Seal(id), m.codec.TTL())
	return nil
}

// Destroy ends the session of the request, if any, and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	// Clear the cookie even if the store fails
	defer m.clearCookie(w)

	id, ok := m.sessionID(r)
	if !ok {
		return nil
	}

	return m.store.Delete(ctx, id)
}

// RevokeAll ends every session of the user with the given email
func (m *Manager) RevokeAll(ctx context.Context, email string) error {
	return m.store.DeleteAll(ctx, email)
}

// Load resolves the session cookie into a Principal in the request context.
// Requests without a usable session pass through anonymous.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.sessionID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		logger := logging.GetLoggerFromContext(r.Context())

		b, err := m.store.Load(r.Context(), id)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				logger.Error("failed to load session", "error", err.Error())
			}
			next.ServeHTTP(w, r)
			return
		}

		principal, err := Deserialize(b)
		if err != nil {
			logger.Warn("discarding session", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth redirects anonymous requests to redirectTo
func (m *Manager) RequireAuth(redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAuthenticated(PrincipalFromContext(r.Context())) {
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionID opens the session cookie of r
func (m *Manager) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	id, err := m.codec.Open(cookie.Value)
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Debug("ignoring session cookie", "error", err.Error())
		return "", false
	}

	return id, true
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
