package resolver

import (
	"context"

	"dashboard-auth/internal/auth"
)

// Resolver turns an unexpired access token into the identity it belongs to.
// Failures are errors, never an empty identity, so callers can tell
// "anonymous" apart from "lookup failed".
type Resolver interface {
	Resolve(
		ctx context.Context,
		accessToken string,
	) (*auth.Identity, error)
}

// IdentityFetcher is the upstream half of a Resolver.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, accessToken string) (*auth.Identity, error)
}
