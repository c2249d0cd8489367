// Package cache holds identity records fetched from the upstream provider,
// keyed by the access token they were fetched with.
package cache

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"dashboard-auth/internal/auth"
)

type entry struct {
	identity   auth.Identity
	insertedAt time.Time
}

// IdentityCache is a process-wide, time-boxed map from access token to
// identity. Entries are never invalidated explicitly: a refreshed session
// carries a new access token, so the old entry just becomes unreachable
// and ages out.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	clock   clock.PassiveClock
}

func New(ttl time.Duration, clk clock.PassiveClock) *IdentityCache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &IdentityCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clk,
	}
}

// Get returns a copy of the cached identity while it is younger than ttl.
func (c *IdentityCache) Get(accessToken string) (*auth.Identity, bool) {
	c.mu.RLock()
	e, ok := c.entries[accessToken]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.expired(e) {
		c.mu.Lock()
		// re-check: a concurrent Set may have replaced it
		if cur, ok := c.entries[accessToken]; ok && c.expired(cur) {
			delete(c.entries, accessToken)
		}
		c.mu.Unlock()
		return nil, false
	}

	id := e.identity
	return &id, true
}

// Set stores identity under accessToken stamped with the current time.
func (c *IdentityCache) Set(accessToken string, identity auth.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[accessToken] = entry{
		identity:   identity,
		insertedAt: c.clock.Now(),
	}
}

// Prune drops every expired entry and returns how many were removed.
func (c *IdentityCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *IdentityCache) TTL() time.Duration {
	return c.ttl
}

func (c *IdentityCache) expired(e entry) bool {
	return c.clock.Since(e.insertedAt) >= c.ttl
}
