package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"dashboard-auth/internal/auth"
)

// ErrUpstreamRejected means the provider answered with a non-2xx status.
var ErrUpstreamRejected = errors.New("provider: upstream rejected request")

// maxIdentityResponse caps how much of an identity response is read.
const maxIdentityResponse = 64 * 1024

// OAuthProvider defines the contract of the upstream identity provider.
// Implementations talk to the provider only; they never touch sessions.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "discord", "oidc").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode trades an authorization code for a token pair.
	ExchangeCode(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error)

	// RefreshToken trades a refresh token for a new token pair. It makes
	// exactly one call to the token endpoint.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// FetchIdentity looks up the identity owning accessToken.
	FetchIdentity(ctx context.Context, accessToken string) (*auth.Identity, error)
}

// Lifetime returns how long tok was issued for, read from the token
// endpoint's expires_in field. Zero means the provider did not say.
func Lifetime(tok *oauth2.Token) time.Duration {
	if tok == nil {
		return 0
	}
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}

	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}

	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry)
	}
	return 0
}

// GetJSON performs a bearer-authenticated GET and decodes the JSON body
// into out. Non-2xx responses wrap ErrUpstreamRejected.
func GetJSON(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: identity request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityResponse))
	if err != nil {
		return fmt.Errorf("provider: read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUpstreamRejected, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider: decode identity: %w", err)
	}
	return nil
}

// WithClient makes oauth2 calls issued with ctx use client.
func WithClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
