package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost matches ten salt rounds.
	DefaultBcryptCost = 10

	minPasswordLength = 8
	maxPasswordBytes  = 72
	maxNameLength     = 100
)

var (
	// ErrValidation is returned when registration input is rejected.
	ErrValidation = errors.New("validation error")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for any failed password login.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError wraps a validation message so callers can distinguish
// client errors from internal failures.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PasswordHasher hashes and checks local passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or DefaultBcryptCost when cost is zero.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Accounts handles local password registration and login.
type Accounts struct {
	repo   UserRepository
	hasher PasswordHasher
	now    func() time.Time
}

// NewAccounts creates an Accounts service.
func NewAccounts(repo UserRepository, hasher PasswordHasher) *Accounts {
	return &Accounts{repo: repo, hasher: hasher, now: time.Now}
}

// Register creates a local account.
func (a *Accounts) Register(ctx context.Context, name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if err := validateRegistration(name, email, password); err != nil {
		return nil, err
	}

	existing, err := a.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	created, err := a.repo.CreateUser(ctx, User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Provider:     ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

// Login checks a password. Linked accounts that kept their password may log in too.
func (a *Accounts) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := a.repo.FindUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if user == nil || !a.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := a.now().UTC()
	user.LastLoginAt = now
	user.UpdatedAt = now
	if err := a.repo.UpdateUser(ctx, *user); err != nil {
		return nil, fmt.Errorf("update user login: %w", err)
	}
	return user, nil
}

func validateRegistration(name, email, password string) error {
	if name == "" {
		return &ValidationError{Message: "name is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &ValidationError{Message: "email is invalid"}
	}
	if len(password) < minPasswordLength {
		return &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	if len(password) > maxPasswordBytes {
		return &ValidationError{Message: fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes)}
	}
	return nil
}
