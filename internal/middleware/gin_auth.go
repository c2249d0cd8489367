package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dashboard-auth/internal/auth"
)

// GinAuthenticate adapts the net/http AuthMiddleware to Gin so the
// pipeline stays framework-agnostic.
func GinAuthenticate(a *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false

		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})

		a.Authenticate(next).ServeHTTP(c.Writer, c.Request)

		// The pipeline answered by itself (401/500): stop the Gin chain
		if !passed {
			c.Abort()
		}
	}
}

// GinIdentity returns the request identity attached by GinAuthenticate.
func GinIdentity(c *gin.Context) (auth.RequestIdentity, bool) {
	return IdentityFromContext(c.Request.Context())
}
