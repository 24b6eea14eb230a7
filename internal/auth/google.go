package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// DefaultGoogleScopes is used when no scopes are configured.
var DefaultGoogleScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// GoogleProvider handles Google OAuth 2.0 with PKCE.
type GoogleProvider struct {
	config     *oauth2.Config
	client     *http.Client
	profileURL string
	verifier   *oidc.IDTokenVerifier
}

// NewGoogleProvider creates a new GoogleProvider.
func NewGoogleProvider(cfg ProviderConfig, opts ...AdapterOption) *GoogleProvider {
	o := buildAdapterOptions(Endpoints{
		AuthURL:    googleAuthURL,
		TokenURL:   googleTokenURL,
		ProfileURL: googleUserInfoURL,
	}, opts)

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultGoogleScopes
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   o.endpoints.AuthURL,
				TokenURL:  o.endpoints.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:     o.client,
		profileURL: o.endpoints.ProfileURL,
		verifier:   o.idTokenVerifier,
	}
}

// NewGoogleIDTokenVerifier discovers Google's signing keys for id_token verification.
func NewGoogleIDTokenVerifier(ctx context.Context, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

func (g *GoogleProvider) Name() Provider {
	return ProviderGoogle
}

// AuthorizationURL generates the Google consent URL. Offline access and a forced
// consent prompt make Google return a refresh token on every login.
func (g *GoogleProvider) AuthorizationURL(state, codeChallenge string) string {
	return g.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and PKCE verifier for tokens.
func (g *GoogleProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	return exchangeCode(ctx, g.client, ProviderGoogle, g.config, code, codeVerifier)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FetchProfile calls the userinfo endpoint with the access token as a bearer credential.
func (g *GoogleProvider) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.profileURL, nil)
	if err != nil {
		return nil, &ProfileFetchError{Provider: ProviderGoogle, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	var info googleUserInfo
	if err := fetchJSON(g.client, ProviderGoogle, req, &info); err != nil {
		return nil, err
	}

	if g.verifier != nil && tokens.IDToken != "" {
		idToken, err := g.verifier.Verify(ctx, tokens.IDToken)
		if err != nil {
			return nil, &ProfileFetchError{Provider: ProviderGoogle, Err: fmt.Errorf("verify id_token: %w", err)}
		}
		if idToken.Subject != info.ID {
			return nil, &ProfileFetchError{Provider: ProviderGoogle, Err: errors.New("id_token subject does not match userinfo")}
		}
	}

	profile := &Profile{
		Provider:       ProviderGoogle,
		ProviderUserID: info.ID,
		Email:          info.Email,
		EmailVerified:  info.VerifiedEmail,
		DisplayName:    info.Name,
		AvatarURL:      info.Picture,
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}
