package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider identifies where an identity comes from.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderLocal    Provider = "local"
)

var (
	// ErrUnsupportedProvider is returned for providers that are unknown or not configured.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrTokenExchangeFailed matches every *TokenExchangeError.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrProfileFetchFailed matches every *ProfileFetchError.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
)

// ParseProvider maps a raw path or config value onto an OAuth provider.
func ParseProvider(raw string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProviderGoogle, ProviderFacebook:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, raw)
	}
}

// ProviderConfig holds the client registration for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// Enabled reports whether the provider has credentials.
func (c ProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// TokenSet is the provider-native token payload returned by the code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string
	Expiry       time.Time
}

// Profile is a provider user normalized across providers.
type Profile struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	AvatarURL      string
}

// ProviderAdapter hides one provider's endpoints and response shapes behind a common contract.
type ProviderAdapter interface {
	Name() Provider
	// AuthorizationURL builds the consent URL. It performs no I/O.
	AuthorizationURL(state, codeChallenge string) string
	// ExchangeCode trades an authorization code for tokens. It is never retried.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)
	// FetchProfile loads and normalizes the user behind the tokens.
	FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error)
}

// TokenExchangeError describes a failed code exchange.
type TokenExchangeError struct {
	Provider   Provider
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s token exchange failed: status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
}

func (e *TokenExchangeError) Is(target error) bool {
	return target == ErrTokenExchangeFailed
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// ProfileFetchError describes a failed user-info call or an unusable profile.
type ProfileFetchError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *ProfileFetchError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("%s profile fetch failed: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s profile fetch failed: %v", e.Provider, e.Err)
}

func (e *ProfileFetchError) Is(target error) bool {
	return target == ErrProfileFetchFailed
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}

// Endpoints overrides a provider's URLs, mostly for tests.
type Endpoints struct {
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

type adapterOptions struct {
	client          *http.Client
	endpoints       Endpoints
	idTokenVerifier *oidc.IDTokenVerifier
}

// AdapterOption configures a provider adapter during construction.
type AdapterOption func(*adapterOptions)

// WithHTTPClient sets the client used for token and profile calls.
func WithHTTPClient(client *http.Client) AdapterOption {
	return func(o *adapterOptions) {
		o.client = client
	}
}

// WithEndpoints replaces any non-empty provider URL.
func WithEndpoints(e Endpoints) AdapterOption {
	return func(o *adapterOptions) {
		if e.AuthURL != "" {
			o.endpoints.AuthURL = e.AuthURL
		}
		if e.TokenURL != "" {
			o.endpoints.TokenURL = e.TokenURL
		}
		if e.ProfileURL != "" {
			o.endpoints.ProfileURL = e.ProfileURL
		}
	}
}

// WithIDTokenVerifier enables id_token verification for providers that return one.
func WithIDTokenVerifier(verifier *oidc.IDTokenVerifier) AdapterOption {
	return func(o *adapterOptions) {
		o.idTokenVerifier = verifier
	}
}

func buildAdapterOptions(defaults Endpoints, opts []AdapterOption) adapterOptions {
	o := adapterOptions{endpoints: defaults}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: 10 * time.Second}
	}
	return o
}

const maxErrorBodyBytes = 512

// exchangeCode performs the single authorization_code grant request shared by all providers.
func exchangeCode(ctx context.Context, client *http.Client, provider Provider, config *oauth2.Config, code, codeVerifier string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	token, err := config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			exchangeErr := &TokenExchangeError{
				Provider: provider,
				Body:     truncateString(string(retrieveErr.Body), maxErrorBodyBytes),
				Err:      err,
			}
			if retrieveErr.Response != nil {
				exchangeErr.StatusCode = retrieveErr.Response.StatusCode
			}
			return nil, exchangeErr
		}
		return nil, &TokenExchangeError{Provider: provider, Err: stripURL(err)}
	}

	if token.AccessToken == "" {
		return nil, &TokenExchangeError{Provider: provider, Err: errors.New("response has no access_token")}
	}

	idToken, _ := token.Extra("id_token").(string)
	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		IDToken:      idToken,
		Expiry:       token.Expiry,
	}, nil
}

const maxProfileBytes = 1 << 20

// fetchJSON sends a profile request and decodes a 200 response into dst.
func fetchJSON(client *http.Client, provider Provider, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ProfileFetchError{Provider: provider, Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &ProfileFetchError{Provider: provider, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(dst); err != nil {
		return &ProfileFetchError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode profile: %w", err)}
	}
	return nil
}

// stripURL drops the request URL from transport errors; Graph API URLs carry the access token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func validateProfile(profile *Profile) error {
	if profile.ProviderUserID == "" {
		return &ProfileFetchError{Provider: profile.Provider, Err: errors.New("profile has no id")}
	}
	if NormalizeEmail(profile.Email) == "" {
		return &ProfileFetchError{Provider: profile.Provider, Err: errors.New("profile has no email")}
	}
	return nil
}

// truncateString truncates a string to the given max length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
