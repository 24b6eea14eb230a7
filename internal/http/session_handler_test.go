package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatehouse/internal/auth"
)

func newTestSessionHandler(accounts *accountsStub, sessions *fakeSessions) *SessionHandler {
	return NewSessionHandler(accounts, sessions, false, discardLogger())
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	user, ok := response["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object, got %T", response["user"])
	}
	return user
}

func TestSessionHandlerRegister(t *testing.T) {
	expected := testUser()
	var gotName, gotEmail string
	accounts := &accountsStub{
		register: func(ctx context.Context, name, email, password string) (*auth.User, error) {
			gotName, gotEmail = name, email
			return expected, nil
		},
	}
	sessions := &fakeSessions{}
	handler := newTestSessionHandler(accounts, sessions)

	body := strings.NewReader(`{"name":"User","email":"user@example.com","password":"password123"}`)
	rec := httptest.NewRecorder()
	handler.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if gotName != "User" || gotEmail != "user@example.com" {
		t.Fatalf("unexpected register input %q %q", gotName, gotEmail)
	}
	if findCookie(rec, sessionCookieName) == nil {
		t.Fatal("expected session cookie")
	}

	user := decodeUser(t, rec)
	if user["email"] != expected.Email || user["hasPassword"] != true {
		t.Fatalf("unexpected user payload %v", user)
	}
	for _, leaked := range []string{"passwordHash", "PasswordHash", "password"} {
		if _, ok := user[leaked]; ok {
			t.Fatalf("user payload exposes %s", leaked)
		}
	}
}

func TestSessionHandlerRegisterErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "validation", body: `{"name":"","email":"a@x.com","password":"p"}`, err: &auth.ValidationError{Message: "name is required"}, status: http.StatusBadRequest},
		{name: "taken", body: `{"name":"A","email":"a@x.com","password":"password123"}`, err: auth.ErrEmailTaken, status: http.StatusConflict},
		{name: "internal", body: `{"name":"A","email":"a@x.com","password":"password123"}`, err: errors.New("db down"), status: http.StatusInternalServerError},
		{name: "unknown field", body: `{"username":"A"}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &accountsStub{
				register: func(ctx context.Context, name, email, password string) (*auth.User, error) {
					return nil, tt.err
				},
			}
			rec := httptest.NewRecorder()
			newTestSessionHandler(accounts, &fakeSessions{}).Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if findCookie(rec, sessionCookieName) != nil {
				t.Fatal("expected no session cookie on failure")
			}
		})
	}
}

func TestSessionHandlerLogin(t *testing.T) {
	expected := testUser()
	accounts := &accountsStub{
		login: func(ctx context.Context, email, password string) (*auth.User, error) {
			if email == expected.Email && password == "password123" {
				return expected, nil
			}
			return nil, auth.ErrInvalidCredentials
		},
	}
	handler := newTestSessionHandler(accounts, &fakeSessions{})

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"user@example.com","password":"password123"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if cookie := findCookie(rec, sessionCookieName); cookie == nil || cookie.Value != "session-token" {
		t.Fatalf("expected session cookie, got %+v", cookie)
	}

	rec = httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"user@example.com","password":"nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestSessionHandlerMe(t *testing.T) {
	handler := newTestSessionHandler(&accountsStub{}, &fakeSessions{})
	expected := testUser()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), userContextKey, expected))
	rec := httptest.NewRecorder()
	handler.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if user := decodeUser(t, rec); user["id"] != expected.ID.String() || user["provider"] != "google" {
		t.Fatalf("unexpected user payload %v", user)
	}

	rec = httptest.NewRecorder()
	handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without user, got %d", rec.Code)
	}
}

func TestSessionHandlerLogoutClearsCookie(t *testing.T) {
	handler := newTestSessionHandler(&accountsStub{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	cookie := findCookie(rec, sessionCookieName)
	if cookie == nil || cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("expected cleared session cookie, got %+v", cookie)
	}
}
