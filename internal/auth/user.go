package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents a persisted account. A user may hold a password, a provider link, or both.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Provider     Provider
	ProviderID   string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
}

// HasPassword reports whether the account supports local password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Attempt is one pending authorization, keyed by its state.
type Attempt struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
	Provider      Provider
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the attempt can no longer be completed.
func (a *Attempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// NormalizeEmail lower-cases and trims an address so lookups match stored values.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
