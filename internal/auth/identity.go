package auth

import "time"

// Identity is the profile record returned by the upstream identity
// endpoint for one access token. ID is the primary identifier.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Provider    string `json:"provider"`
}

// Complete reports whether the record carries a primary identifier.
func (i *Identity) Complete() bool {
	return i != nil && i.ID != ""
}

// RequestIdentity is the per-request view of who is calling. Identity is
// nil for anonymous requests. It is never persisted.
type RequestIdentity struct {
	Identity  *Identity
	SessionID string
	ExpiresAt time.Time
	Refreshed bool
}

// Authenticated reports whether a complete identity was resolved.
func (r RequestIdentity) Authenticated() bool {
	return r.Identity.Complete()
}
