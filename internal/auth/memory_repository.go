package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type providerKey struct {
	provider   Provider
	providerID string
}

// InMemoryUserRepository stores users in process memory with the same uniqueness
// rules as the users table.
type InMemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]User
	byEmail    map[string]uuid.UUID
	byProvider map[providerKey]uuid.UUID
}

// NewInMemoryUserRepository constructs an empty repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:      make(map[uuid.UUID]User),
		byEmail:    make(map[string]uuid.UUID),
		byProvider: make(map[providerKey]uuid.UUID),
	}
}

// FindUserByID returns the user with the given ID.
func (r *InMemoryUserRepository) FindUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// FindUserByProvider returns the user linked to the provider identity.
func (r *InMemoryUserRepository) FindUserByProvider(_ context.Context, provider Provider, providerID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProvider[providerKey{provider, providerID}]
	if !ok {
		return nil, nil
	}
	user := r.users[id]
	return &user, nil
}

// FindUserByEmail returns the user owning the normalized email.
func (r *InMemoryUserRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	user := r.users[id]
	return &user, nil
}

// CreateUser stores a new user.
func (r *InMemoryUserRepository) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	if _, ok := r.users[user.ID]; ok {
		return User{}, ErrDuplicateUser
	}
	if r.conflicts(user) {
		return User{}, ErrDuplicateUser
	}

	r.users[user.ID] = user
	r.index(user)
	return user, nil
}

// UpdateUser replaces an existing user.
func (r *InMemoryUserRepository) UpdateUser(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	user.Email = NormalizeEmail(user.Email)
	if r.conflicts(user) {
		return ErrDuplicateUser
	}

	r.unindex(existing)
	r.users[user.ID] = user
	r.index(user)
	return nil
}

// conflicts reports whether another user already owns the email or provider identity.
func (r *InMemoryUserRepository) conflicts(user User) bool {
	if id, ok := r.byEmail[user.Email]; ok && id != user.ID {
		return true
	}
	if user.ProviderID != "" {
		if id, ok := r.byProvider[providerKey{user.Provider, user.ProviderID}]; ok && id != user.ID {
			return true
		}
	}
	return false
}

func (r *InMemoryUserRepository) index(user User) {
	r.byEmail[user.Email] = user.ID
	if user.ProviderID != "" {
		r.byProvider[providerKey{user.Provider, user.ProviderID}] = user.ID
	}
}

func (r *InMemoryUserRepository) unindex(user User) {
	delete(r.byEmail, user.Email)
	if user.ProviderID != "" {
		delete(r.byProvider, providerKey{user.Provider, user.ProviderID})
	}
}

// InMemoryAttemptStore keeps authorization attempts in a map guarded by a mutex.
type InMemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]Attempt
	now      func() time.Time
}

// NewInMemoryAttemptStore constructs a store. A nil clock uses time.Now.
func NewInMemoryAttemptStore(now func() time.Time) *InMemoryAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryAttemptStore{
		attempts: make(map[string]Attempt),
		now:      now,
	}
}

// Put stores a new attempt.
func (s *InMemoryAttemptStore) Put(_ context.Context, attempt Attempt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[attempt.State]; ok {
		return ErrDuplicateState
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	attempt.ExpiresAt = attempt.CreatedAt.Add(ttl)
	s.attempts[attempt.State] = attempt
	return nil
}

// Take removes and returns the attempt for state.
func (s *InMemoryAttemptStore) Take(_ context.Context, state string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[state]
	if !ok {
		return nil, nil
	}
	delete(s.attempts, state)
	if attempt.Expired(s.now()) {
		return nil, nil
	}
	return &attempt, nil
}

// DeleteExpired removes every expired attempt.
func (s *InMemoryAttemptStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for state, attempt := range s.attempts {
		if attempt.Expired(now) {
			delete(s.attempts, state)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored attempts, expired or not.
func (s *InMemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
