package auth

import "errors"

// Failure classes of the request pipeline. They are for logs and
// metrics; clients only ever see 401 or 500.
var (
	ErrRefreshFailed      = errors.New("auth: token refresh failed")
	ErrIdentityResolution = errors.New("auth: identity resolution failed")
	ErrStoreUnavailable   = errors.New("auth: session store unavailable")
)
