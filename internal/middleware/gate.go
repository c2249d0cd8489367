package middleware

import (
	"strings"

	"dashboard-auth/internal/auth"
)

// Gate enforces identity on every path under a protected prefix.
// Matching is segment-aware: "/api" protects "/api" and "/api/x" but
// not "/apix".
type Gate struct {
	prefix string
}

func NewGate(prefix string) *Gate {
	if prefix != "/" {
		prefix = strings.TrimRight(prefix, "/")
	}
	if prefix == "" {
		prefix = "/"
	}
	return &Gate{prefix: prefix}
}

// Protected reports whether path falls under the protected prefix.
func (g *Gate) Protected(path string) bool {
	if g.prefix == "/" {
		return true
	}
	return path == g.prefix || strings.HasPrefix(path, g.prefix+"/")
}

// Allow decides whether the request may continue. Unprotected paths
// always pass.
func (g *Gate) Allow(path string, id auth.RequestIdentity) bool {
	if !g.Protected(path) {
		return true
	}
	return id.Authenticated()
}
