package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	testingclock "k8s.io/utils/clock/testing"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/cache"
	"dashboard-auth/internal/middleware"
	"dashboard-auth/internal/session"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string]session.Session
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]session.Session)}
}

func (m *memStore) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) Set(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.SessionID] = s
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.data, id)
	return nil
}

type fakeProvider struct {
	exchangeErr  error
	identity     *auth.Identity
	gotVerifier  string
	gotChallenge string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) AuthCodeURL(state, challenge string) string {
	f.gotChallenge = challenge
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	f.gotVerifier = verifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{
		AccessToken:  "at-" + code,
		RefreshToken: "rt-" + code,
		ExpiresIn:    604800,
	}, nil
}

func (f *fakeProvider) RefreshToken(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) FetchIdentity(context.Context, string) (*auth.Identity, error) {
	if f.identity == nil {
		return nil, errors.New("no identity")
	}
	id := *f.identity
	return &id, nil
}

type fixture struct {
	provider *fakeProvider
	store    *memStore
	cache    *cache.IdentityCache
	clock    *testingclock.FakePassiveClock
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		provider: &fakeProvider{identity: &auth.Identity{ID: "42", Username: "alice", Provider: "fake"}},
		store:    newMemStore(),
		clock:    testingclock.NewFakePassiveClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.cache = cache.New(time.Hour, f.clock)

	h := NewHandler(f.provider, f.store, f.cache, Options{
		Cookie:       session.CookieOptions{Name: "userId"},
		SessionTTL:   24 * time.Hour,
		SafetyMargin: 30 * time.Minute,
		Clock:        f.clock,
	})

	f.router = gin.New()
	h.RegisterRoutes(f.router, f.router.Group("/api"))
	return f
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (f *fixture) startLogin(t *testing.T) (state, verifier string) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	stateCookie := cookieByName(rec, stateCookieName)
	pkceCookie := cookieByName(rec, pkceCookieName)
	require.NotNil(t, stateCookie)
	require.NotNil(t, pkceCookie)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, stateCookie.Value, loc.Query().Get("state"))

	return stateCookie.Value, pkceCookie.Value
}

func (f *fixture) callback(query string, state, verifier string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: stateCookieName, Value: state})
	}
	if verifier != "" {
		req.AddCookie(&http.Cookie{Name: pkceCookieName, Value: verifier})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRedirectsWithPKCE(t *testing.T) {
	f := newFixture(t)

	_, verifier := f.startLogin(t)

	assert.Equal(t, pkceChallenge(verifier), f.provider.gotChallenge)
}

func TestCallbackCreatesSession(t *testing.T) {
	f := newFixture(t)
	state, verifier := f.startLogin(t)

	rec := f.callback("code=abc&state="+url.QueryEscape(state), state, verifier)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, verifier, f.provider.gotVerifier)

	sessionCookie := cookieByName(rec, "userId")
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	stored, err := f.store.Get(context.Background(), sessionCookie.Value)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "at-abc", stored.AccessToken)
	assert.Equal(t, "rt-abc", stored.RefreshToken)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour-30*time.Minute), stored.ExpiresAt)

	cached, ok := f.cache.Get("at-abc")
	require.True(t, ok)
	assert.Equal(t, "alice", cached.Username)

	// flow cookies are spent
	assert.Equal(t, -1, cookieByName(rec, stateCookieName).MaxAge)
	assert.Equal(t, -1, cookieByName(rec, pkceCookieName).MaxAge)
}

func TestCallbackRejectsBadState(t *testing.T) {
	f := newFixture(t)
	_, verifier := f.startLogin(t)

	rec := f.callback("code=abc&state=forged", "real", verifier)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.store.data)
}

func TestCallbackMissingVerifier(t *testing.T) {
	f := newFixture(t)
	state, _ := f.startLogin(t)

	rec := f.callback("code=abc&state="+url.QueryEscape(state), state, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallbackProviderError(t *testing.T) {
	f := newFixture(t)
	state, verifier := f.startLogin(t)

	rec := f.callback("error=access_denied&state="+url.QueryEscape(state), state, verifier)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Empty(t, f.store.data)
}

func TestCallbackExchangeFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.exchangeErr = errors.New("invalid_grant")
	state, verifier := f.startLogin(t)

	rec := f.callback("code=abc&state="+url.QueryEscape(state), state, verifier)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "invalid_grant")
	assert.Empty(t, f.store.data)
}

func TestCallbackIncompleteIdentity(t *testing.T) {
	f := newFixture(t)
	f.provider.identity = &auth.Identity{Username: "ghost"}
	state, verifier := f.startLogin(t)

	rec := f.callback("code=abc&state="+url.QueryEscape(state), state, verifier)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.store.data)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), session.Session{
		SessionID:    "sid",
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    f.clock.Now().Add(time.Hour),
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "userId", Value: "sid"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sid"}, f.store.deleted)
	assert.Equal(t, -1, cookieByName(rec, "userId").MaxAge)

	// idempotent without a cookie
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakeProvider{}, newMemStore(), cache.New(time.Hour, nil), Options{})

	expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	withIdentity := func(id auth.RequestIdentity) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
		}
	}

	r := gin.New()
	r.GET("/anon", withIdentity(auth.RequestIdentity{}), h.Me)
	r.GET("/me", withIdentity(auth.RequestIdentity{
		Identity:  &auth.Identity{ID: "42", Username: "alice"},
		ExpiresAt: expires,
		Refreshed: true,
	}), h.Me)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User      auth.Identity `json:"user"`
		ExpiresAt string        `json:"expires_at"`
		Refreshed bool          `json:"refreshed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.User.Username)
	assert.Equal(t, "2026-01-01T12:00:00Z", body.ExpiresAt)
	assert.True(t, body.Refreshed)
}
