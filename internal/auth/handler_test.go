package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/session"
	"github.com/redmonkez12/authman/internal/view"
	"github.com/redmonkez12/authman/templates"
)

const testCookieName = "authman_session"

type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, toEmail, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[toEmail] = token
	return nil
}

// blockingNotifier holds every send until release is closed
type blockingNotifier struct {
	started chan struct{}
	release chan struct{}
}

func (n *blockingNotifier) SendPasswordResetEmail(_ context.Context, _, _ string) error {
	n.started <- struct{}{}
	<-n.release
	return nil
}

func (n *recordingNotifier) token(email string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, ok := n.tokens[email]
	return token, ok
}

type handlerEnv struct {
	store    *memUserStore
	service  *Service
	handler  *Handler
	notifier *recordingNotifier
	router   http.Handler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	store := newMemUserStore()
	svc := newTestService(store, &testClock{now: time.Now()})

	codec, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	sessions := session.NewManager(session.NewMemoryStore(), codec, testCookieName, false)

	pages, err := view.NewRenderer(templates.PagesFS, "pages")
	require.NoError(t, err)

	notifier := &recordingNotifier{tokens: make(map[string]string)}
	h := NewHandler(svc, sessions, pages, notifier)

	r := chi.NewRouter()
	r.Use(sessions.Load)
	r.Get("/", h.Index)
	r.Post("/signup", h.SignUp)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.With(sessions.RequireAuth("/")).Get("/profile", h.Profile)
	r.Post("/forgotpassword", h.ForgotPassword)
	r.Get("/resetpassword/{token}", h.ResetPasswordPage)
	r.Post("/resetpassword/{token}", h.ResetPassword)

	return &handlerEnv{store: store, service: svc, handler: h, notifier: notifier, router: r}
}

func (e *handlerEnv) do(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func credentials(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func findCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookieName {
			return c
		}
	}
	return nil
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, to string) {
	t.Helper()
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, to, rec.Header().Get("Location"))
}

func TestHandler_SignUp(t *testing.T) {
	env := newHandlerEnv(t)

	rec := env.do(http.MethodPost, "/signup", credentials("user@example.com", "pw123"))
	assertRedirect(t, rec, "/profile")

	cookie := findCookie(rec)
	require.NotNil(t, cookie)

	profile := env.do(http.MethodGet, "/profile", nil, cookie)
	assert.Equal(t, http.StatusOK, profile.Code)
	assert.Contains(t, profile.Body.String(), "user@example.com")

	t.Run("duplicate", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/signup", credentials("user@example.com", "other"))
		assertRedirect(t, rec, "/signup")
		assert.Nil(t, findCookie(rec))
	})

	t.Run("invalid input", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/signup", credentials("", ""))
		assertRedirect(t, rec, "/signup")
	})
}

func TestHandler_LoginFailuresLookAlike(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)

	wrong := env.do(http.MethodPost, "/login", credentials("user@example.com", "nope"))
	unknown := env.do(http.MethodPost, "/login", credentials("ghost@example.com", "nope"))

	assertRedirect(t, wrong, "/login")
	assertRedirect(t, unknown, "/login")
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Nil(t, findCookie(wrong))
	assert.Nil(t, findCookie(unknown))
}

func TestHandler_ProfileRequiresSession(t *testing.T) {
	env := newHandlerEnv(t)
	assertRedirect(t, env.do(http.MethodGet, "/profile", nil), "/")
}

func TestHandler_ForgotPasswordIsIdentical(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)

	known := env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"user@example.com"}})
	unknown := env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"ghost@example.com"}})
	require.NoError(t, env.handler.WaitForPending(context.Background()))

	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Header(), unknown.Header())
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assertRedirect(t, known, "/forgotpassword")

	_, sent := env.notifier.token("user@example.com")
	assert.True(t, sent)
	_, sent = env.notifier.token("ghost@example.com")
	assert.False(t, sent)
}

func TestHandler_ResetPasswordPage(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)
	token, _, err := env.service.IssueResetToken(context.Background(), "user@example.com")
	require.NoError(t, err)

	t.Run("valid token renders form", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/resetpassword/"+token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `action="/resetpassword/`+token+`"`)
	})

	t.Run("unknown token", func(t *testing.T) {
		assertRedirect(t, env.do(http.MethodGet, "/resetpassword/bogus", nil), "/forgotpassword")
	})
}

func TestHandler_ResetPassword(t *testing.T) {
	env := newHandlerEnv(t)

	signup := env.do(http.MethodPost, "/signup", credentials("user@example.com", "pw123"))
	oldSession := findCookie(signup)
	require.NotNil(t, oldSession)

	env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"user@example.com"}})
	require.NoError(t, env.handler.WaitForPending(context.Background()))
	token, ok := env.notifier.token("user@example.com")
	require.True(t, ok)

	rec := env.do(http.MethodPost, "/resetpassword/"+token, url.Values{"password": {"newpw"}})
	assertRedirect(t, rec, "/login")

	t.Run("existing sessions are revoked", func(t *testing.T) {
		assertRedirect(t, env.do(http.MethodGet, "/profile", nil, oldSession), "/")
	})

	t.Run("new password logs in", func(t *testing.T) {
		assertRedirect(t, env.do(http.MethodPost, "/login", credentials("user@example.com", "newpw")), "/profile")
		assertRedirect(t, env.do(http.MethodPost, "/login", credentials("user@example.com", "pw123")), "/login")
	})

	t.Run("token is spent", func(t *testing.T) {
		assertRedirect(t, env.do(http.MethodPost, "/resetpassword/"+token, url.Values{"password": {"again"}}), "/forgotpassword")
		assertRedirect(t, env.do(http.MethodGet, "/resetpassword/"+token, nil), "/forgotpassword")
	})
}

func TestHandler_ResetPasswordEmptyPassword(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)
	token, _, err := env.service.IssueResetToken(context.Background(), "user@example.com")
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/resetpassword/"+token, url.Values{"password": {""}})
	assertRedirect(t, rec, "/forgotpassword")

	_, err = env.service.ValidateResetToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestHandler_Logout(t *testing.T) {
	env := newHandlerEnv(t)

	login := env.do(http.MethodPost, "/signup", credentials("user@example.com", "pw123"))
	cookie := findCookie(login)
	require.NotNil(t, cookie)

	rec := env.do(http.MethodGet, "/logout", nil, cookie)
	assertRedirect(t, rec, "/")
	cleared := findCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	assertRedirect(t, env.do(http.MethodGet, "/profile", nil, cookie), "/")
}

func TestHandler_WaitForPendingHonorsContext(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)

	blocked := &blockingNotifier{started: make(chan struct{}, 1), release: make(chan struct{})}
	env.handler.notifier = blocked
	t.Cleanup(func() { close(blocked.release) })

	rec := env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"user@example.com"}})
	assertRedirect(t, rec, "/forgotpassword")

	select {
	case <-blocked.started:
	case <-time.After(5 * time.Second):
		t.Fatal("reset delivery never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = env.handler.WaitForPending(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHandler_ForgotPasswordBoundsPendingDeliveries(t *testing.T) {
	env := newHandlerEnv(t)
	_, err := env.service.SignUp(context.Background(), "user@example.com", "pw123")
	require.NoError(t, err)

	require.True(t, env.handler.resetSlots.TryAcquire(MaxPendingResets))

	rec := env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"user@example.com"}})
	assertRedirect(t, rec, "/forgotpassword")
	require.NoError(t, env.handler.WaitForPending(context.Background()))

	_, sent := env.notifier.token("user@example.com")
	assert.False(t, sent)

	env.handler.resetSlots.Release(MaxPendingResets)

	again := env.do(http.MethodPost, "/forgotpassword", url.Values{"email": {"user@example.com"}})
	require.NoError(t, env.handler.WaitForPending(context.Background()))

	assert.Equal(t, rec.Code, again.Code)
	assert.Equal(t, rec.Header(), again.Header())
	_, sent = env.notifier.token("user@example.com")
	assert.True(t, sent)
}

func TestLogFailure_Levels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"store failure", storeError("get user", errors.New("connection refused")), `"level":"ERROR"`},
		{"expected failure", ErrBadCredentials, `"level":"WARN"`},
		{"unexpected failure", errors.New("boom"), `"level":"ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logFailure(logging.New(&buf, false), "login failed", tt.err)
			assert.Contains(t, buf.String(), tt.level)
		})
	}

	t.Run("store failure is marked", func(t *testing.T) {
		var buf bytes.Buffer
		logFailure(logging.New(&buf, false), "login failed", storeError("get user", errors.New("connection refused")))
		assert.Contains(t, buf.String(), `"store":true`)
	})
}
