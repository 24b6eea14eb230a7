package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFlow struct {
	enabled       map[auth.Provider]bool
	authURL       string
	initiateErr   error
	callbackUser  *auth.User
	callbackErr   error
	lastCode      string
	lastState     string
	abandoned     []string
	callbackCalls int
}

func newFakeFlow() *fakeFlow {
	return &fakeFlow{
		enabled: map[auth.Provider]bool{auth.ProviderGoogle: true, auth.ProviderFacebook: true},
		authURL: "https://provider.test/auth?state=abc",
	}
}

func (f *fakeFlow) Enabled(provider auth.Provider) bool {
	return f.enabled[provider]
}

func (f *fakeFlow) Initiate(ctx context.Context, provider auth.Provider) (string, string, error) {
	if f.initiateErr != nil {
		return "", "", f.initiateErr
	}
	return f.authURL, "abc", nil
}

func (f *fakeFlow) CompleteCallback(ctx context.Context, provider auth.Provider, code, state string) (*auth.User, error) {
	f.callbackCalls++
	f.lastCode, f.lastState = code, state
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return f.callbackUser, nil
}

func (f *fakeFlow) Abandon(ctx context.Context, state string) error {
	f.abandoned = append(f.abandoned, state)
	return nil
}

type fakeSessions struct {
	issueErr error
	issued   []*auth.User
}

func (f *fakeSessions) Issue(user *auth.User) (string, time.Time, error) {
	if f.issueErr != nil {
		return "", time.Time{}, f.issueErr
	}
	f.issued = append(f.issued, user)
	return "session-token", time.Now().Add(time.Hour), nil
}

type accountsStub struct {
	register func(ctx context.Context, name, email, password string) (*auth.User, error)
	login    func(ctx context.Context, email, password string) (*auth.User, error)
}

func (a *accountsStub) Register(ctx context.Context, name, email, password string) (*auth.User, error) {
	if a.register != nil {
		return a.register(ctx, name, email, password)
	}
	return nil, errors.New("register not stubbed")
}

func (a *accountsStub) Login(ctx context.Context, email, password string) (*auth.User, error) {
	if a.login != nil {
		return a.login(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredentials
}

type userFinderStub struct {
	users map[uuid.UUID]*auth.User
	err   error
}

func (s *userFinderStub) FindUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

func testUser() *auth.User {
	return &auth.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		Name:         "User",
		PasswordHash: "hash",
		Provider:     auth.ProviderGoogle,
		ProviderID:   "g123",
		AvatarURL:    "avatar.png",
	}
}
