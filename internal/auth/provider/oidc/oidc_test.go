package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashboard-auth/internal/auth/provider"
)

func newIssuer(t *testing.T, withUserInfo bool) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}
		if withUserInfo {
			doc["userinfo_endpoint"] = srv.URL + "/userinfo"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":300}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"user-1","preferred_username":"jdoe","name":"Jane Doe","email":"jane@example.com"}`))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDiscoversEndpoints(t *testing.T) {
	srv := newIssuer(t, true)

	p, err := New(context.Background(), Options{
		Issuer:       srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/userinfo", p.userInfoURL)
	assert.Equal(t, srv.URL+"/token", p.oauthConfig.Endpoint.TokenURL)
	assert.Contains(t, p.oauthConfig.Scopes, "openid")
}

func TestNewWithoutUserInfo(t *testing.T) {
	srv := newIssuer(t, false)

	_, err := New(context.Background(), Options{
		Issuer:       srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	assert.ErrorContains(t, err, "userinfo")
}

func TestRefreshAndFetchIdentity(t *testing.T) {
	srv := newIssuer(t, true)

	p, err := New(context.Background(), Options{
		Issuer:       srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)

	tok, err := p.RefreshToken(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)

	id, err := p.FetchIdentity(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)
	assert.Equal(t, "jdoe", id.Username)
	assert.Equal(t, "Jane Doe", id.DisplayName)

	_, err = p.FetchIdentity(context.Background(), "other")
	assert.ErrorIs(t, err, provider.ErrUpstreamRejected)
}
