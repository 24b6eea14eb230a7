package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const (
	facebookAuthURL    = "https://www.facebook.com/v18.0/dialog/oauth"
	facebookTokenURL   = "https://graph.facebook.com/v18.0/oauth/access_token"
	facebookProfileURL = "https://graph.facebook.com/me"
	facebookFields     = "id,name,email,picture"
)

// DefaultFacebookScopes is used when no scopes are configured.
var DefaultFacebookScopes = []string{"email", "public_profile"}

// FacebookProvider handles Facebook Login with PKCE.
type FacebookProvider struct {
	config     *oauth2.Config
	scopes     []string
	client     *http.Client
	profileURL string
}

// NewFacebookProvider creates a new FacebookProvider.
func NewFacebookProvider(cfg ProviderConfig, opts ...AdapterOption) *FacebookProvider {
	o := buildAdapterOptions(Endpoints{
		AuthURL:    facebookAuthURL,
		TokenURL:   facebookTokenURL,
		ProfileURL: facebookProfileURL,
	}, opts)

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultFacebookScopes
	}

	return &FacebookProvider{
		// Scopes stay off the oauth2 config: it joins them with spaces and Facebook wants commas.
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   o.endpoints.AuthURL,
				TokenURL:  o.endpoints.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		scopes:     scopes,
		client:     o.client,
		profileURL: o.endpoints.ProfileURL,
	}
}

func (f *FacebookProvider) Name() Provider {
	return ProviderFacebook
}

// AuthorizationURL generates the Facebook login dialog URL.
func (f *FacebookProvider) AuthorizationURL(state, codeChallenge string) string {
	return f.config.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("scope", strings.Join(f.scopes, ",")),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and PKCE verifier for an access token.
func (f *FacebookProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	return exchangeCode(ctx, f.client, ProviderFacebook, f.config, code, codeVerifier)
}

type facebookUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// FetchProfile calls the Graph API. Unlike Google, the token travels as a query parameter.
func (f *FacebookProvider) FetchProfile(ctx context.Context, tokens *TokenSet) (*Profile, error) {
	endpoint, err := url.Parse(f.profileURL)
	if err != nil {
		return nil, &ProfileFetchError{Provider: ProviderFacebook, Err: err}
	}
	query := endpoint.Query()
	query.Set("fields", facebookFields)
	query.Set("access_token", tokens.AccessToken)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &ProfileFetchError{Provider: ProviderFacebook, Err: stripURL(err)}
	}

	var user facebookUser
	if err := fetchJSON(f.client, ProviderFacebook, req, &user); err != nil {
		return nil, err
	}

	// Graph only returns the email once the user has confirmed it.
	profile := &Profile{
		Provider:       ProviderFacebook,
		ProviderUserID: user.ID,
		Email:          user.Email,
		EmailVerified:  user.Email != "",
		DisplayName:    user.Name,
		AvatarURL:      user.Picture.Data.URL,
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}
