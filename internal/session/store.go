package session

import (
	"context"
	"errors"
	"time"
)

// ErrMalformedSession is returned by stores when a persisted record
// cannot be decoded into a usable Session.
var ErrMalformedSession = errors.New("session: malformed record")

// Session binds an opaque client-held identifier to the upstream
// token pair. ExpiresAt is biased earlier than the real token expiry.
type Session struct {
	SessionID    string    `json:"session_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Validate reports ErrMalformedSession when a required field is missing.
func (s Session) Validate() error {
	if s.SessionID == "" || s.AccessToken == "" || s.RefreshToken == "" || s.ExpiresAt.IsZero() {
		return ErrMalformedSession
	}
	return nil
}

// Expired reports whether the access token must be refreshed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when no record exists. Set writes the whole
// record in one operation so readers never observe a half-updated pair.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Set(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
