package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/session"
	"github.com/redmonkez12/authman/internal/view"
)

// PageRenderer writes a named HTML page
type PageRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, name string, page view.Page)
}

// ResetNotifier delivers a reset token to its owner
type ResetNotifier interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// MaxPendingResets caps password reset deliveries running in the background
const MaxPendingResets = 16

// Handler contains the HTTP handlers of the web auth routes.
// Every outcome is a redirect or a rendered page; errors only reach the log.
type Handler struct {
	service  *Service
	sessions *session.Manager
	pages    PageRenderer
	notifier ResetNotifier

	// background password reset deliveries
	pending    sync.WaitGroup
	resetSlots *semaphore.Weighted
}

func NewHandler(service *Service, sessions *session.Manager, pages PageRenderer, notifier ResetNotifier) *Handler {
	return &Handler{
		service:    service,
		sessions:   sessions,
		pages:      pages,
		notifier:   notifier,
		resetSlots: semaphore.NewWeighted(MaxPendingResets),
	}
}

// Index renders the landing page
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "index", view.Page{Title: "Home"})
}

// SignUpPage renders the sign-up form
func (h *Handler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "signup", view.Page{Title: "Sign up"})
}

// SignUp creates the account and logs it in
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid sign-up form", "error", err.Error())
		redirect(w, r, "/signup")
		return
	}

	email := r.PostFormValue("email")
	logger = logger.WithFields(map[string]any{"email": email})

	newUser, err := h.service.SignUp(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		logFailure(logger, "sign-up failed", err)
		redirect(w, r, "/signup")
		return
	}

	if err := h.sessions.Establish(r.Context(), w, r, newUser); err != nil {
		// The account exists, so the next stop is the login form
		logger.Error("failed to establish session after sign-up", "error", err.Error())
		redirect(w, r, "/login")
		return
	}

	redirect(w, r, "/profile")
}

// LoginPage renders the login form
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "login", view.Page{Title: "Log in"})
}

// Login checks the credentials and starts a session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid login form", "error", err.Error())
		redirect(w, r, "/login")
		return
	}

	email := r.PostFormValue("email")
	logger = logger.WithFields(map[string]any{"email": email})

	existingUser, err := h.service.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		logFailure(logger, "login failed", err)
		redirect(w, r, "/login")
		return
	}

	if err := h.sessions.Establish(r.Context(), w, r, existingUser); err != nil {
		logger.Error("failed to establish session", "error", err.Error())
		redirect(w, r, "/login")
		return
	}

	logger.Info("user logged in", "user_id", existingUser.ID)
	redirect(w, r, "/profile")
}

// Logout ends the current session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to destroy session", "error", err.Error())
	}
	redirect(w, r, "/")
}

// Profile renders the profile of the logged-in user
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "profile", view.Page{Title: "Profile"})
}

// ForgotPasswordPage renders the reset request form
func (h *Handler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "forgotpassword", view.Page{Title: "Forgot password"})
}

// ForgotPassword issues and mails a reset token in the background.
// The response is the same redirect whether or not the email is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid forgot password form", "error", err.Error())
		redirect(w, r, "/forgotpassword")
		return
	}

	email := r.PostFormValue("email")

	if h.resetSlots.TryAcquire(1) {
		// Outlives the request; keeps its logger
		ctx := context.WithoutCancel(r.Context())

		h.pending.Add(1)
		go func() {
			defer h.pending.Done()
			defer h.resetSlots.Release(1)
			h.deliverResetToken(ctx, email)
		}()
	} else {
		logger.Warn("too many pending password resets, request dropped", "email", email)
	}

	// Always the same answer (prevent email enumeration)
	redirect(w, r, "/forgotpassword")
}

func (h *Handler) deliverResetToken(ctx context.Context, email string) {
	logger := logging.GetLoggerFromContext(ctx).WithFields(map[string]any{"email": email})

	token, resetUser, err := h.service.IssueResetToken(ctx, email)
	if err != nil {
		logFailure(logger, "password reset not issued", err)
		return
	}

	if err := h.notifier.SendPasswordResetEmail(ctx, resetUser.Email, token); err != nil {
		logger.Error("failed to deliver password reset token", "error", err.Error())
	}
}

// WaitForPending blocks until background deliveries started by ForgotPassword
// finish or ctx is done, whichever comes first
func (h *Handler) WaitForPending(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending password resets: %w", ctx.Err())
	}
}

// ResetPasswordPage renders the new password form for a valid token
func (h *Handler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		logFailure(logging.GetLoggerFromContext(r.Context()), "reset form refused", err)
		redirect(w, r, "/forgotpassword")
		return
	}

	h.pages.Render(w, r, "resetpassword", view.Page{Title: "Reset password", Token: token})
}

// ResetPassword sets the new password and signs the user out everywhere
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid reset password form", "error", err.Error())
		redirect(w, r, "/forgotpassword")
		return
	}

	resetUser, err := h.service.ConsumeResetToken(r.Context(), chi.URLParam(r, "token"), r.PostFormValue("password"))
	if err != nil {
		logFailure(logger, "password reset failed", err)
		redirect(w, r, "/forgotpassword")
		return
	}

	// The password changed; sessions opened with the old one are gone
	if err := h.sessions.RevokeAll(r.Context(), resetUser.Email); err != nil {
		logger.Error("failed to revoke sessions after password reset", "user_id", resetUser.ID, "error", err.Error())
	}
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		logger.Error("failed to destroy session", "error", err.Error())
	}

	redirect(w, r, "/login")
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// logFailure logs expected auth failures as warnings and everything else as errors
func logFailure(logger *logging.Logger, msg string, err error) {
	switch {
	case IsStoreError(err):
		logger.Error(msg, "error", err.Error(), "store", true)
	case errors.Is(err, ErrDuplicateUser),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrBadCredentials),
		errors.Is(err, ErrInvalidOrExpiredToken),
		errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrInvalidEmailFormat),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordTooLong):
		logger.Warn(msg, "reason", err.Error())
	default:
		logger.Error(msg, "error", err.Error())
	}
}
