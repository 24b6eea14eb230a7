package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrInvalidOrExpiredState is returned when a callback state is unknown, already used, expired,
	// or was issued for a different provider.
	ErrInvalidOrExpiredState = errors.New("invalid or expired state")
	// ErrMissingCode is returned when a callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")
)

const (
	defaultAttemptTTL  = 10 * time.Minute
	defaultHTTPTimeout = 10 * time.Second
)

// IdentityResolver turns a provider profile into a persisted user.
type IdentityResolver interface {
	Resolve(ctx context.Context, profile *Profile) (*User, error)
}

// FlowConfig tunes the orchestrator.
type FlowConfig struct {
	// AttemptTTL bounds how long a user may take at the provider.
	AttemptTTL time.Duration
	// HTTPTimeout bounds each outbound provider call.
	HTTPTimeout time.Duration
}

// Flow runs the authorization code + PKCE sequence from initiation to a resolved user.
type Flow struct {
	adapters    map[Provider]ProviderAdapter
	attempts    AttemptStore
	resolver    IdentityResolver
	logger      *slog.Logger
	attemptTTL  time.Duration
	httpTimeout time.Duration
	now         func() time.Time
}

// NewFlow wires a Flow with the adapters of every enabled provider.
func NewFlow(attempts AttemptStore, resolver IdentityResolver, logger *slog.Logger, cfg FlowConfig, adapters ...ProviderAdapter) *Flow {
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = defaultAttemptTTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	byName := make(map[Provider]ProviderAdapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}

	return &Flow{
		adapters:    byName,
		attempts:    attempts,
		resolver:    resolver,
		logger:      logger,
		attemptTTL:  cfg.AttemptTTL,
		httpTimeout: cfg.HTTPTimeout,
		now:         time.Now,
	}
}

// Enabled reports whether provider has an adapter.
func (f *Flow) Enabled(provider Provider) bool {
	_, ok := f.adapters[provider]
	return ok
}

// Initiate issues a new attempt for provider and returns the URL to send the user to.
func (f *Flow) Initiate(ctx context.Context, provider Provider) (redirectURL, state string, err error) {
	adapter, ok := f.adapters[provider]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	state, err = NewState()
	if err != nil {
		return "", "", err
	}
	verifier, challenge, err := NewPKCEPair()
	if err != nil {
		return "", "", err
	}

	attempt := Attempt{
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: challenge,
		Provider:      provider,
		CreatedAt:     f.now().UTC(),
	}
	if err := f.attempts.Put(ctx, attempt, f.attemptTTL); err != nil {
		return "", "", fmt.Errorf("store attempt: %w", err)
	}

	return adapter.AuthorizationURL(state, challenge), state, nil
}

// CompleteCallback consumes the attempt for state and, if it is valid, exchanges the code,
// fetches the profile, and resolves the user. The attempt is gone afterwards whatever the outcome.
func (f *Flow) CompleteCallback(ctx context.Context, provider Provider, code, state string) (*User, error) {
	attempt, err := f.take(ctx, state)
	if err != nil {
		return nil, err
	}
	if attempt == nil || attempt.Provider != provider {
		return nil, ErrInvalidOrExpiredState
	}

	adapter, ok := f.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if code == "" {
		return nil, ErrMissingCode
	}

	tokens, err := f.exchange(ctx, adapter, code, attempt.CodeVerifier)
	if err != nil {
		return nil, err
	}

	profile, err := f.fetchProfile(ctx, adapter, tokens)
	if err != nil {
		return nil, err
	}

	user, err := f.resolver.Resolve(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return user, nil
}

// Abandon consumes an attempt without completing it, e.g. when the provider reports an error.
func (f *Flow) Abandon(ctx context.Context, state string) error {
	_, err := f.take(ctx, state)
	return err
}

func (f *Flow) take(ctx context.Context, state string) (*Attempt, error) {
	if state == "" {
		return nil, nil
	}
	attempt, err := f.attempts.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("consume attempt: %w", err)
	}
	return attempt, nil
}

func (f *Flow) exchange(ctx context.Context, adapter ProviderAdapter, code, verifier string) (*TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, f.httpTimeout)
	defer cancel()
	return adapter.ExchangeCode(ctx, code, verifier)
}

func (f *Flow) fetchProfile(ctx context.Context, adapter ProviderAdapter, tokens *TokenSet) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, f.httpTimeout)
	defer cancel()
	return adapter.FetchProfile(ctx, tokens)
}

// SweepExpired deletes attempts whose callback never arrived.
func (f *Flow) SweepExpired(ctx context.Context) (int64, error) {
	return f.attempts.DeleteExpired(ctx)
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (f *Flow) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := f.SweepExpired(ctx)
			if err != nil {
				f.logger.Error("sweep expired oauth attempts", "error", err)
				continue
			}
			if removed > 0 {
				f.logger.Debug("swept expired oauth attempts", "count", removed)
			}
		}
	}
}
