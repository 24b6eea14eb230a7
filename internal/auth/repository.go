package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when updating a user that does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateUser is returned when a write would break email or provider uniqueness.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrDuplicateState is returned when an attempt is stored under a state already in use.
	ErrDuplicateState = errors.New("authorization state already exists")
)

// UserRepository defines user persistence. Finders return nil, nil when nothing matches.
type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByProvider(ctx context.Context, provider Provider, providerID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) error
}

// AttemptStore holds pending authorization attempts.
type AttemptStore interface {
	// Put stores the attempt until CreatedAt+ttl.
	Put(ctx context.Context, attempt Attempt, ttl time.Duration) error
	// Take atomically removes and returns the attempt for state. Concurrent callers
	// race and only one sees the attempt; absent or expired attempts return nil, nil.
	Take(ctx context.Context, state string) (*Attempt, error)
	// DeleteExpired removes attempts whose callback never arrived.
	DeleteExpired(ctx context.Context) (int64, error)
}
