package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gatehouse/internal/auth"
)

const sessionCookieName = "gatehouse_session"

type accountService interface {
	Register(ctx context.Context, name, email, password string) (*auth.User, error)
	Login(ctx context.Context, email, password string) (*auth.User, error)
}

// SessionHandler serves local registration and login, and reports or ends the current session.
type SessionHandler struct {
	accounts     accountService
	sessions     sessionIssuer
	logger       *slog.Logger
	secureCookie bool
}

// NewSessionHandler returns a SessionHandler.
func NewSessionHandler(accounts accountService, sessions sessionIssuer, secureCookies bool, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		accounts:     accounts,
		sessions:     sessions,
		logger:       logger,
		secureCookie: secureCookies,
	}
}

type credentialsPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register.
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		var validationErr *auth.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			h.logger.Error("register user", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": newUserResponse(user)})
}

// Login handles POST /api/auth/login.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	user, err := h.accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("login user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	if !h.startSession(w, user) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

// Me handles GET /api/auth/me. It runs behind the auth middleware.
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

// Logout removes the session cookie. Sessions are stateless, so nothing is revoked server-side.
func (h *SessionHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	clearSessionCookie(w, h.secureCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) startSession(w http.ResponseWriter, user *auth.User) bool {
	token, expiresAt, err := h.sessions.Issue(user)
	if err != nil {
		h.logger.Error("issue session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return false
	}
	setSessionCookie(w, token, expiresAt, h.secureCookie)
	return true
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
