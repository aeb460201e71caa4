package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authman/internal/user"
)

const testCookie = "authman_session"

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	codec, err := NewCodec(testKey, time.Hour)
	require.NoError(t, err)
	store := NewMemoryStore()
	return NewManager(store, codec, testCookie, false), store
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", testCookie)
	return nil
}

// principalOf runs req through Load and returns the principal the handler saw
func principalOf(m *Manager, req *http.Request) *Principal {
	var seen *Principal
	h := m.Load(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return seen
}

func establish(t *testing.T, m *Manager, email string, prior *http.Cookie) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if prior != nil {
		req.AddCookie(prior)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, m.Establish(context.Background(), rec, req, &user.User{Email: email}))
	return sessionCookie(t, rec)
}

func TestManager_EstablishAndLoad(t *testing.T) {
	m, _ := newTestManager(t)

	cookie := establish(t, m, "user@example.com", nil)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(cookie)

	p := principalOf(m, req)
	require.NotNil(t, p)
	assert.Equal(t, "user@example.com", p.Email)
}

func TestManager_LoadAnonymous(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Nil(t, principalOf(m, httptest.NewRequest(http.MethodGet, "/", nil)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "forged"})
	assert.Nil(t, principalOf(m, req))
}

func TestManager_EstablishReplacesPresentedSession(t *testing.T) {
	m, store := newTestManager(t)

	first := establish(t, m, "user@example.com", nil)
	second := establish(t, m, "user@example.com", first)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(first)
	assert.Nil(t, principalOf(m, req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(second)
	assert.NotNil(t, principalOf(m, req))

	assert.Len(t, store.sessions, 1)
}

func TestManager_Destroy(t *testing.T) {
	m, _ := newTestManager(t)
	cookie := establish(t, m, "user@example.com", nil)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Destroy(context.Background(), rec, req))

	cleared := sessionCookie(t, rec)
	assert.Equal(t, "", cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// The old cookie no longer resolves
	req = httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(cookie)
	assert.Nil(t, principalOf(m, req))
}

func TestManager_DestroyWithoutSession(t *testing.T) {
	m, _ := newTestManager(t)
	rec := httptest.NewRecorder()
	assert.NoError(t, m.Destroy(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/logout", nil)))
	sessionCookie(t, rec)
}

func TestManager_RevokeAll(t *testing.T) {
	m, _ := newTestManager(t)
	a := establish(t, m, "user@example.com", nil)
	b := establish(t, m, "user@example.com", nil)
	other := establish(t, m, "other@example.com", nil)

	require.NoError(t, m.RevokeAll(context.Background(), "user@example.com"))

	for _, c := range []*http.Cookie{a, b} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(c)
		assert.Nil(t, principalOf(m, req))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(other)
	assert.NotNil(t, principalOf(m, req))
}

func TestManager_RequireAuth(t *testing.T) {
	m, _ := newTestManager(t)
	protected := m.Load(m.RequireAuth("/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("anonymous is redirected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("authenticated passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.AddCookie(establish(t, m, "user@example.com", nil))
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
