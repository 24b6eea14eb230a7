package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestSessionIssueAndParse(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", time.Hour)
	user := &User{ID: uuid.New(), Email: "a@x.com", Name: "Alice", Provider: ProviderGoogle}

	token, expiresAt, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != user.ID {
		t.Fatalf("expected subject %s, got %s (%v)", user.ID, id, err)
	}
	if claims.Email != "a@x.com" || claims.Provider != ProviderGoogle {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionParseRejectsExpiredToken(t *testing.T) {
	clock := newFakeClock()
	issuer := NewSessionIssuer("test-secret", time.Minute)
	issuer.now = clock.Now

	token, _, err := issuer.Issue(&User{ID: uuid.New()})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionParseRejectsForeignTokens(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", time.Hour)
	other := NewSessionIssuer("other-secret", time.Hour)

	foreign, _, _ := other.Issue(&User{ID: uuid.New()})

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
	}).SignedString([]byte("test-secret"))

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "not.a.jwt",
		"wrong key":   foreign,
		"alg none":    unsigned,
		"no expiry":   noExpiry,
		"bad subject": badSubject,
	} {
		if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("%s: expected ErrInvalidSession, got %v", name, err)
		}
	}
}

func TestNewSessionIssuerDefaultsTTL(t *testing.T) {
	if got := NewSessionIssuer("s", 0).TTL(); got != 12*time.Hour {
		t.Fatalf("expected 12h default, got %v", got)
	}
}
