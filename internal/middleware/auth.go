package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"k8s.io/utils/clock"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/resolver"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/metrics"
	"dashboard-auth/internal/session"
)

// unexported, collision-proof context key
type identityContextKeyType struct{}

var identityKey = identityContextKeyType{}

// IdentityFromContext extracts the request identity attached by the
// pipeline. ok is false when the pipeline did not run.
func IdentityFromContext(ctx context.Context) (auth.RequestIdentity, bool) {
	id, ok := ctx.Value(identityKey).(auth.RequestIdentity)
	return id, ok
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id auth.RequestIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Refresher renews the token pair of an expired session.
type Refresher interface {
	Refresh(ctx context.Context, sess session.Session) (session.Session, error)
}

type AuthMiddleware struct {
	Store      session.Store
	Refresher  Refresher
	Resolver   resolver.Resolver
	Gate       *Gate
	CookieName string
	Clock      clock.PassiveClock
	Metrics    *metrics.Metrics
}

func NewAuthMiddleware(
	store session.Store,
	refresher Refresher,
	res resolver.Resolver,
	gate *Gate,
	cookieName string,
	clk clock.PassiveClock,
	m *metrics.Metrics,
) *AuthMiddleware {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &AuthMiddleware{
		Store:      store,
		Refresher:  refresher,
		Resolver:   res,
		Gate:       gate,
		CookieName: cookieName,
		Clock:      clk,
		Metrics:    m,
	}
}

// Authenticate runs once per request: cookie -> session -> refresh if
// expired -> identity -> context -> gate -> next. Every failure ends as
// 401 or 500 here and never reaches the route handler.
func (a *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			a.Metrics.PipelineFailure(failureClass(err))
			logger.Error("request authentication failed", map[string]any{
				"path":    r.URL.Path,
				"session": session.ShortID(id.SessionID),
				"error":   err.Error(),
			})
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if a.Gate.Protected(r.URL.Path) {
			allowed := a.Gate.Allow(r.URL.Path, id)
			a.Metrics.GateDecision(allowed)
			if !allowed {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// identify resolves who is calling. A nil error with a nil Identity is
// an anonymous request.
func (a *AuthMiddleware) identify(r *http.Request) (id auth.RequestIdentity, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	ctx := r.Context()

	// 1. Read session cookie
	sessionID, ok := session.ReadCookie(r, a.CookieName)
	if !ok {
		return auth.RequestIdentity{}, nil
	}
	id.SessionID = sessionID

	// 2. Load session
	sess, err := a.Store.Get(ctx, sessionID)
	if err != nil {
		return id, fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err)
	}
	if sess == nil {
		return id, nil
	}

	// 3. Refresh an expired access token before using it
	if sess.Expired(a.Clock.Now()) {
		refreshed, err := a.Refresher.Refresh(ctx, *sess)
		if errors.Is(err, auth.ErrRefreshFailed) {
			a.Metrics.PipelineFailure("refresh")
			logger.Warn("session refresh failed", map[string]any{
				"session": session.ShortID(sessionID),
				"error":   err.Error(),
			})
			return id, nil
		}
		if err != nil {
			return id, err
		}
		sess = &refreshed
		id.Refreshed = true
	}
	id.ExpiresAt = sess.ExpiresAt

	// 4. Resolve identity
	identity, err := a.Resolver.Resolve(ctx, sess.AccessToken)
	if err != nil {
		return id, err
	}
	id.Identity = identity

	return id, nil
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, auth.ErrStoreUnavailable):
		return "store"
	case errors.Is(err, auth.ErrIdentityResolution):
		return "identity"
	default:
		return "internal"
	}
}
