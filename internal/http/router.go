package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/redmonkez12/authman/internal/auth"
	"github.com/redmonkez12/authman/internal/config"
	"github.com/redmonkez12/authman/internal/httputil"
	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/session"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, authHandler *auth.Handler, sessions *session.Manager, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders)               // Security headers on all responses
	r.Use(middleware.Recoverer)          // Recover from panics
	r.Use(middleware.RequestID)          // Add request ID
	r.Use(middleware.RealIP)             // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger)) // Structured logging with request context
	r.Use(middleware.Compress(5))        // Compress responses
	r.Use(sessions.Load)                 // Principal from the session cookie, if any

	r.Get("/health", handleHealth)

	// Public pages
	r.Get("/", authHandler.Index)
	r.Get("/signup", authHandler.SignUpPage)
	r.Post("/signup", authHandler.SignUp)
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)
	r.Get("/forgotpassword", authHandler.ForgotPasswordPage)
	r.Post("/forgotpassword", authHandler.ForgotPassword)
	r.Get("/resetpassword/{token}", authHandler.ResetPasswordPage)
	r.Post("/resetpassword/{token}", authHandler.ResetPassword)

	// Protected routes (require a session)
	r.Group(func(r chi.Router) {
		r.Use(sessions.RequireAuth("/"))
		r.Get("/profile", authHandler.Profile)
	})

	return r
}

// handleHealth is a simple health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
