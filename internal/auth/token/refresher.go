package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"k8s.io/utils/clock"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/provider"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/metrics"
	"dashboard-auth/internal/session"
)

// Upstream is the part of the provider the refresher needs.
type Upstream interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ExpiresAt biases the upstream lifetime earlier by margin. When the
// provider issues a lifetime not longer than margin, half the lifetime
// is used instead so the result stays in the future and before the
// real expiry.
func ExpiresAt(now time.Time, lifetime, margin time.Duration) time.Time {
	if margin >= lifetime {
		margin = lifetime / 2
	}
	return now.Add(lifetime - margin)
}

// Refresher exchanges the refresh token of an expired session and
// persists the new pair under the same session id.
type Refresher struct {
	upstream Upstream
	store    session.Store
	margin   time.Duration
	clock    clock.PassiveClock
	metrics  *metrics.Metrics
}

func NewRefresher(
	upstream Upstream,
	store session.Store,
	margin time.Duration,
	clk clock.PassiveClock,
	m *metrics.Metrics,
) (*Refresher, error) {
	if margin <= 0 {
		return nil, errors.New("token: safety margin must be positive")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Refresher{
		upstream: upstream,
		store:    store,
		margin:   margin,
		clock:    clk,
		metrics:  m,
	}, nil
}

// Refresh makes exactly one upstream call. On any upstream failure the
// store is not written and the error wraps auth.ErrRefreshFailed; a
// failed write wraps auth.ErrStoreUnavailable.
func (r *Refresher) Refresh(ctx context.Context, sess session.Session) (session.Session, error) {
	tok, err := r.upstream.RefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		r.metrics.Refresh("rejected")
		return sess, fmt.Errorf("%w: %w", auth.ErrRefreshFailed, err)
	}
	if tok == nil || tok.AccessToken == "" {
		r.metrics.Refresh("rejected")
		return sess, fmt.Errorf("%w: upstream returned no access token", auth.ErrRefreshFailed)
	}

	lifetime := provider.Lifetime(tok)
	if lifetime <= 0 {
		r.metrics.Refresh("rejected")
		return sess, fmt.Errorf("%w: upstream returned no expires_in", auth.ErrRefreshFailed)
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = sess.RefreshToken
	}

	updated := session.Session{
		SessionID:    sess.SessionID,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    ExpiresAt(r.clock.Now(), lifetime, r.margin),
	}

	// The upstream may already have rotated the old refresh token, so the
	// new pair is written even if the client went away meanwhile.
	if err := r.store.Set(context.WithoutCancel(ctx), updated); err != nil {
		r.metrics.Refresh("store_error")
		return sess, fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err)
	}

	r.metrics.Refresh("ok")
	logger.Info("session token refreshed", map[string]any{
		"session":    session.ShortID(sess.SessionID),
		"expires_at": updated.ExpiresAt.Unix(),
	})

	return updated, nil
}
