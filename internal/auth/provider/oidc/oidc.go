package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/provider"
	"dashboard-auth/internal/logger"
)

const providerName = "oidc"

// Provider implements the upstream contract against any OpenID Connect
// issuer. Endpoints come from discovery; identities from the userinfo
// endpoint, so opaque access tokens work as well as JWTs.
type Provider struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

type Options struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// New initializes the provider using discovery against opts.Issuer.
func New(ctx context.Context, opts Options) (*Provider, error) {

	if opts.Issuer == "" || opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("oidc oauth config missing required fields")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	oidcProvider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	var claims struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := oidcProvider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc discovery claims parse failed: %w", err)
	}
	if claims.UserInfoURL == "" {
		return nil, errors.New("oidc issuer does not publish a userinfo endpoint")
	}

	ep := oidcProvider.Endpoint()
	ep.AuthStyle = oauth2.AuthStyleInParams

	scopes := append([]string{gooidc.ScopeOpenID}, opts.Scopes...)

	logger.Info("oidc provider discovered", map[string]any{
		"issuer":    opts.Issuer,
		"token_url": ep.TokenURL,
		"userinfo":  claims.UserInfoURL,
	})

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     ep,
			Scopes:       scopes,
		},
		userInfoURL: claims.UserInfoURL,
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
		oauth2.AccessTypeOffline,
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
		logger.Error("oidc token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	return token, nil
}

func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := p.oauthConfig.TokenSource(
		provider.WithClient(ctx, p.httpClient),
		&oauth2.Token{RefreshToken: refreshToken},
	)

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oidc token refresh failed: %w", err)
	}

	return token, nil
}

func (p *Provider) FetchIdentity(ctx context.Context, accessToken string) (*auth.Identity, error) {
	var claims struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
		Picture           string `json:"picture"`
	}

	if err := provider.GetJSON(ctx, p.httpClient, p.userInfoURL, accessToken, &claims); err != nil {
		return nil, fmt.Errorf("oidc userinfo lookup failed: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	display := claims.Name
	if display == "" {
		display = username
	}

	return &auth.Identity{
		ID:          claims.Subject,
		Username:    username,
		DisplayName: display,
		Email:       claims.Email,
		Avatar:      claims.Picture,
		Provider:    providerName,
	}, nil
}
