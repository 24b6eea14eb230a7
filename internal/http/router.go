package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gatehouse/internal/auth"
	"gatehouse/internal/config"
)

// Services bundles what the routes need from the auth package.
type Services struct {
	Flow     *auth.Flow
	Accounts *auth.Accounts
	Sessions *auth.SessionIssuer
	Users    auth.UserRepository
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	oauthHandler := NewOAuthHandler(svc.Flow, svc.Sessions, cfg.FrontendURL, cfg.SecureCookies(), cfg.AttemptTTL, logger)
	sessionHandler := NewSessionHandler(svc.Accounts, svc.Sessions, cfg.SecureCookies(), logger)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", sessionHandler.Register)
		r.Post("/login", sessionHandler.Login)
		r.Post("/logout", sessionHandler.Logout)
		r.With(newAuthMiddleware(svc.Sessions, svc.Users, logger)).Get("/me", sessionHandler.Me)

		r.Get("/{provider}", oauthHandler.Initiate)
		r.Get("/{provider}/callback", oauthHandler.Callback)
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
