package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider serves /token and /profile for a single provider.
type fakeProvider struct {
	server       *httptest.Server
	tokenCalls   atomic.Int32
	profileCalls atomic.Int32

	mu          sync.Mutex
	tokenForm   url.Values
	profileReq  *http.Request
	tokenStatus int
	tokenBody   map[string]any
	profileBody map[string]any
	profileCode int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{
		tokenStatus: http.StatusOK,
		tokenBody: map[string]any{
			"access_token":  "access-123",
			"refresh_token": "refresh-123",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
		profileCode: http.StatusOK,
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			f.tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse token form: %v", err)
			}
			f.mu.Lock()
			f.tokenForm = r.PostForm
			status, body := f.tokenStatus, f.tokenBody
			f.mu.Unlock()
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		case "/profile":
			f.profileCalls.Add(1)
			f.mu.Lock()
			f.profileReq = r.Clone(r.Context())
			status, body := f.profileCode, f.profileBody
			f.mu.Unlock()
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) endpoints() AdapterOption {
	return WithEndpoints(Endpoints{
		AuthURL:    f.server.URL + "/auth",
		TokenURL:   f.server.URL + "/token",
		ProfileURL: f.server.URL + "/profile",
	})
}

func (f *fakeProvider) setToken(status int, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus, f.tokenBody = status, body
}

func (f *fakeProvider) setProfile(status int, body map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCode, f.profileBody = status, body
}

func (f *fakeProvider) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenForm
}

func (f *fakeProvider) lastProfileRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileReq
}

var testProviderConfig = ProviderConfig{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	RedirectURI:  "http://localhost:8080/api/auth/google/callback",
}
