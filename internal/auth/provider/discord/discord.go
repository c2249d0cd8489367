package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/provider"
)

const providerName = "discord"

// DefaultBaseURL is the versioned Discord REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

// Provider implements the chat platform's OAuth2 flow. The token endpoint
// receives the client credentials in the form body, and identities come
// from /users/@me.
type Provider struct {
	oauthConfig *oauth2.Config
	identityURL string
	httpClient  *http.Client
}

type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// HTTPClient is used for every upstream call. Defaults to a client
	// with a 10s timeout.
	HTTPClient *http.Client
}

func New(opts Options) (*Provider, error) {

	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("discord oauth config missing client credentials")
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"identify", "email"}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		identityURL: base + "/users/@me",
		httpClient:  client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("prompt", "none"),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*oauth2.Token, error) {

	token, err := p.oauthConfig.Exchange(
		provider.WithClient(ctx, p.httpClient),
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("discord token exchange failed: %w", err)
	}

	return token, nil
}

func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// A token without an access token is never valid, so the source
	// goes straight to the refresh grant.
	src := p.oauthConfig.TokenSource(
		provider.WithClient(ctx, p.httpClient),
		&oauth2.Token{RefreshToken: refreshToken},
	)

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("discord token refresh failed: %w", err)
	}

	return token, nil
}

// user mirrors the fields of the /users/@me response that are used.
type user struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Email      string  `json:"email"`
	Avatar     *string `json:"avatar"`
}

func (p *Provider) FetchIdentity(ctx context.Context, accessToken string) (*auth.Identity, error) {
	var u user
	if err := provider.GetJSON(ctx, p.httpClient, p.identityURL, accessToken, &u); err != nil {
		return nil, fmt.Errorf("discord identity lookup failed: %w", err)
	}

	identity := &auth.Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Provider: providerName,
	}
	if u.GlobalName != nil {
		identity.DisplayName = *u.GlobalName
	}
	if identity.DisplayName == "" {
		identity.DisplayName = u.Username
	}
	if u.Avatar != nil {
		identity.Avatar = *u.Avatar
	}

	return identity, nil
}
