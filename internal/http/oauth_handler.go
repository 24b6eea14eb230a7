package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/auth"
)

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	// Decode to catch encoded bypass attempts like /%2f%2f
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	// Must start with / but not //
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.HasPrefix(decoded, "/\\") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	// Reject if it has a scheme or host (would be absolute URL)
	if parsed.Scheme != "" || parsed.Host != "" {
		return false
	}

	return true
}

const (
	oauthRedirectCookieName = "gatehouse_oauth_redirect"
	oauthRedirectCookiePath = "/api/auth"
)

type oauthFlow interface {
	Enabled(provider auth.Provider) bool
	Initiate(ctx context.Context, provider auth.Provider) (redirectURL, state string, err error)
	CompleteCallback(ctx context.Context, provider auth.Provider, code, state string) (*auth.User, error)
	Abandon(ctx context.Context, state string) error
}

type sessionIssuer interface {
	Issue(user *auth.User) (string, time.Time, error)
}

// OAuthHandler handles the provider redirect and callback endpoints.
type OAuthHandler struct {
	flow         oauthFlow
	sessions     sessionIssuer
	logger       *slog.Logger
	secureCookie bool
	frontendURL  string
	redirectTTL  time.Duration
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(flow oauthFlow, sessions sessionIssuer, frontendURL string, secureCookies bool, redirectTTL time.Duration, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		flow:         flow,
		sessions:     sessions,
		logger:       logger,
		secureCookie: secureCookies,
		frontendURL:  strings.TrimSuffix(frontendURL, "/"),
		redirectTTL:  redirectTTL,
	}
}

// Initiate handles GET /api/auth/{provider}
// Redirects the user to the provider's consent screen.
func (h *OAuthHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	authURL, _, err := h.flow.Initiate(r.Context(), provider)
	if err != nil {
		h.logger.Error("oauth initiate failed", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// The state is an opaque store key, so the post-login path travels in its own cookie.
	if redirectTo := r.URL.Query().Get("redirectTo"); isValidRedirectPath(redirectTo) {
		http.SetCookie(w, &http.Cookie{
			Name:     oauthRedirectCookieName,
			Value:    url.QueryEscape(redirectTo),
			Path:     oauthRedirectCookiePath,
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(h.redirectTTL.Seconds()),
		})
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback handles GET /api/auth/{provider}/callback
// Completes the attempt, issues a session, and sends the user back to the frontend.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	redirectTo := h.popRedirectPath(w, r)
	query := r.URL.Query()
	state := query.Get("state")

	// The user denied consent or the provider failed. The attempt is spent either way,
	// even when the provider in the path is unknown or disabled.
	if errParam := query.Get("error"); errParam != "" {
		providerName := chi.URLParam(r, "provider")
		if err := h.flow.Abandon(r.Context(), state); err != nil {
			h.logger.Error("oauth callback: abandon attempt", "provider", providerName, "error", err)
		}
		h.logger.Warn("oauth callback: provider error", "provider", providerName, "error", errParam)
		h.redirectWithError(w, r, errParam, query.Get("error_description"))
		return
	}

	provider, ok := h.provider(r)
	if !ok {
		h.redirectWithError(w, r, "unsupported_provider", "This sign-in method is not available.")
		return
	}

	if state == "" {
		h.redirectWithError(w, r, "invalid_request", "Missing state. Please try again.")
		return
	}

	user, err := h.flow.CompleteCallback(r.Context(), provider, query.Get("code"), state)
	if err != nil {
		code, message := callbackError(err)
		if code == "internal_error" {
			h.logger.Error("oauth callback failed", "provider", provider, "error", err)
		} else {
			h.logger.Warn("oauth callback rejected", "provider", provider, "reason", code, "error", err)
		}
		h.redirectWithError(w, r, code, message)
		return
	}

	token, expiresAt, err := h.sessions.Issue(user)
	if err != nil {
		h.logger.Error("oauth callback: session creation failed", "error", err)
		h.redirectWithError(w, r, "internal_error", "Failed to create session.")
		return
	}
	setSessionCookie(w, token, expiresAt, h.secureCookie)

	h.logger.Info("oauth login successful", "provider", provider, "user_id", user.ID)

	http.Redirect(w, r, h.frontendURL+redirectTo, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) provider(r *http.Request) (auth.Provider, bool) {
	provider, err := auth.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil || !h.flow.Enabled(provider) {
		return "", false
	}
	return provider, true
}

// popRedirectPath returns the stored post-login path, or "/", and clears its cookie.
func (h *OAuthHandler) popRedirectPath(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(oauthRedirectCookieName)
	if err != nil {
		return "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthRedirectCookieName,
		Value:    "",
		Path:     oauthRedirectCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	path, err := url.QueryUnescape(cookie.Value)
	if err != nil || !isValidRedirectPath(path) {
		return "/"
	}
	return path
}

// callbackError maps a flow failure to the code and message shown on the login page.
func callbackError(err error) (string, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidOrExpiredState):
		return "invalid_state", "Your sign-in session expired. Please try again."
	case errors.Is(err, auth.ErrMissingCode):
		return "invalid_request", "Missing authorization code."
	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return "exchange_error", "Failed to complete authentication."
	case errors.Is(err, auth.ErrProfileFetchFailed):
		return "profile_error", "Failed to load your profile from the provider."
	case errors.Is(err, auth.ErrUnverifiedEmail):
		return "email_not_verified", "Please verify your email address with the provider."
	case errors.Is(err, auth.ErrLinkingDisabled):
		return "account_exists", "An account with this email already exists. Sign in with your password."
	case errors.Is(err, auth.ErrIdentityConflict):
		return "conflict", "Your account could not be linked. Please try again."
	default:
		return "internal_error", "Something went wrong. Please try again."
	}
}

// redirectWithError redirects to the login page with error details.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message string) {
	target := h.frontendURL + "/login?error=" + url.QueryEscape(code)
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
