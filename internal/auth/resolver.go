package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrIdentityConflict is returned when concurrent logins keep colliding on the same identity.
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrUnverifiedEmail is returned when linking would rely on an email the provider has not verified.
	ErrUnverifiedEmail = errors.New("provider email is not verified")
	// ErrLinkingDisabled is returned when an email matches an account and linking is turned off.
	ErrLinkingDisabled = errors.New("email belongs to an existing account")
)

// Resolver maps provider profiles onto persisted users, creating or linking as needed.
type Resolver struct {
	repo        UserRepository
	logger      *slog.Logger
	now         func() time.Time
	linkByEmail bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEmailLinking controls whether a provider identity may attach to an existing
// account that owns the same email.
func WithEmailLinking(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.linkByEmail = enabled
	}
}

// WithResolverClock overrides time.Now.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver. Email linking is enabled by default.
func NewResolver(repo UserRepository, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:        repo,
		logger:      logger,
		now:         time.Now,
		linkByEmail: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user for profile. A uniqueness violation means another request
// resolved the same identity first, so the lookup runs once more before giving up.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile) (*User, error) {
	if profile == nil || profile.ProviderUserID == "" || NormalizeEmail(profile.Email) == "" {
		return nil, errors.New("resolve identity: incomplete profile")
	}

	user, err := r.resolveOnce(ctx, profile)
	if !errors.Is(err, ErrDuplicateUser) {
		return user, err
	}

	r.logger.Warn("identity resolution collided, retrying", "provider", profile.Provider)
	user, err = r.resolveOnce(ctx, profile)
	if errors.Is(err, ErrDuplicateUser) {
		return nil, fmt.Errorf("%w: %s account %s", ErrIdentityConflict, profile.Provider, profile.ProviderUserID)
	}
	return user, err
}

func (r *Resolver) resolveOnce(ctx context.Context, profile *Profile) (*User, error) {
	now := r.now().UTC()

	existing, err := r.repo.FindUserByProvider(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("find user by provider: %w", err)
	}
	if existing != nil {
		// Refresh profile data on every login.
		if name := strings.TrimSpace(profile.DisplayName); name != "" {
			existing.Name = name
		}
		existing.AvatarURL = profile.AvatarURL
		existing.LastLoginAt = now
		existing.UpdatedAt = now
		if err := r.repo.UpdateUser(ctx, *existing); err != nil {
			return nil, fmt.Errorf("update user login: %w", err)
		}
		return existing, nil
	}

	email := NormalizeEmail(profile.Email)
	byEmail, err := r.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if byEmail != nil {
		if !r.linkByEmail {
			return nil, ErrLinkingDisabled
		}
		if !profile.EmailVerified {
			return nil, ErrUnverifiedEmail
		}
		// The password hash is left alone so local login keeps working.
		byEmail.Provider = profile.Provider
		byEmail.ProviderID = profile.ProviderUserID
		if profile.AvatarURL != "" {
			byEmail.AvatarURL = profile.AvatarURL
		}
		byEmail.LastLoginAt = now
		byEmail.UpdatedAt = now
		if err := r.repo.UpdateUser(ctx, *byEmail); err != nil {
			return nil, fmt.Errorf("link user: %w", err)
		}
		r.logger.Info("linked provider identity to existing account",
			"user_id", byEmail.ID,
			"provider", profile.Provider,
			"had_password", byEmail.HasPassword(),
		)
		return byEmail, nil
	}

	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	created, err := r.repo.CreateUser(ctx, User{
		ID:          uuid.New(),
		Email:       email,
		Name:        name,
		Provider:    profile.Provider,
		ProviderID:  profile.ProviderUserID,
		AvatarURL:   profile.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}
