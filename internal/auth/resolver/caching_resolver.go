package resolver

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/auth/cache"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/metrics"
)

// CachingResolver consults the identity cache first and falls back to the
// upstream provider on a miss. Concurrent misses for the same token share
// one upstream call.
type CachingResolver struct {
	cache    *cache.IdentityCache
	upstream IdentityFetcher
	metrics  *metrics.Metrics
	group    singleflight.Group
}

func NewCachingResolver(
	c *cache.IdentityCache,
	upstream IdentityFetcher,
	m *metrics.Metrics,
) *CachingResolver {
	return &CachingResolver{
		cache:    c,
		upstream: upstream,
		metrics:  m,
	}
}

func (r *CachingResolver) Resolve(
	ctx context.Context,
	accessToken string,
) (*auth.Identity, error) {

	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", auth.ErrIdentityResolution)
	}

	if identity, ok := r.cache.Get(accessToken); ok {
		r.metrics.CacheLookup(true)
		logger.Debug("identity cache hit", map[string]any{
			"username": identity.Username,
		})
		return identity, nil
	}
	r.metrics.CacheLookup(false)

	v, err, _ := r.group.Do(accessToken, func() (any, error) {
		// a caller that was waiting on the previous flight may find it cached
		if identity, ok := r.cache.Get(accessToken); ok {
			return identity, nil
		}

		identity, err := r.upstream.FetchIdentity(context.WithoutCancel(ctx), accessToken)
		if err != nil {
			r.metrics.IdentityFetch("error")
			return nil, err
		}
		if identity == nil {
			r.metrics.IdentityFetch("error")
			return nil, errors.New("upstream returned no identity")
		}

		r.metrics.IdentityFetch("ok")
		r.cache.Set(accessToken, *identity)
		return identity, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrIdentityResolution, err)
	}

	identity := *v.(*auth.Identity)
	return &identity, nil
}
