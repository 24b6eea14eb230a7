package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/auth"
)

func protectedHandler(t *testing.T, users *userFinderStub, sessions *auth.SessionIssuer) http.Handler {
	t.Helper()
	return newAuthMiddleware(sessions, users, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("X-User", user.Email)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddlewareRejectsMissingCookie(t *testing.T) {
	next := protectedHandler(t, &userFinderStub{}, auth.NewSessionIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestAuthMiddlewareInjectsUser(t *testing.T) {
	sessions := auth.NewSessionIssuer("secret", time.Hour)
	user := testUser()
	token, _, err := sessions.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	next := protectedHandler(t, &userFinderStub{users: map[uuid.UUID]*auth.User{user.ID: user}}, sessions)

	for name, setToken := range map[string]func(*http.Request){
		"cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token}) },
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		setToken(req)
		rec := httptest.NewRecorder()

		next.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || rec.Header().Get("X-User") != user.Email {
			t.Fatalf("%s: expected user to be injected, got status %d", name, rec.Code)
		}
	}
}

func TestAuthMiddlewareRejectsInvalidSession(t *testing.T) {
	other := auth.NewSessionIssuer("other-secret", time.Hour)
	user := testUser()
	forged, _, _ := other.Issue(user)
	next := protectedHandler(t, &userFinderStub{users: map[uuid.UUID]*auth.User{user.ID: user}}, auth.NewSessionIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: forged})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsDeletedUser(t *testing.T) {
	sessions := auth.NewSessionIssuer("secret", time.Hour)
	token, _, _ := sessions.Issue(testUser())
	next := protectedHandler(t, &userFinderStub{}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareLookupFailure(t *testing.T) {
	sessions := auth.NewSessionIssuer("secret", time.Hour)
	token, _, _ := sessions.Issue(testUser())
	next := protectedHandler(t, &userFinderStub{err: errors.New("db down")}, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()

	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	next := newSecurityHeadersMiddleware("production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected X-Frame-Options header")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS outside development")
	}
}
