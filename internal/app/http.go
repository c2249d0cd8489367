package app

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"dashboard-auth/internal/auth/cache"
	"dashboard-auth/internal/auth/handler"
	"dashboard-auth/internal/auth/resolver"
	"dashboard-auth/internal/auth/token"
	"dashboard-auth/internal/config"
	"dashboard-auth/internal/metrics"
	"dashboard-auth/internal/middleware"
	"dashboard-auth/internal/session"
)

// components are the long-lived pieces the background loop maintains.
type components struct {
	identities *cache.IdentityCache
	limiter    *middleware.RateLimiter
}

func setupHTTP(
	cfg config.Config,
	infra *Infra,
	reg *prometheus.Registry,
	clk clock.PassiveClock,
) (*gin.Engine, *components, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	identities := cache.New(cfg.CacheTTL, clk)
	m := metrics.New(reg, identities.Len)

	refresher, err := token.NewRefresher(infra.Provider, infra.Store, cfg.RefreshSafetyMargin, clk, m)
	if err != nil {
		return nil, nil, err
	}

	identityResolver := resolver.NewCachingResolver(identities, infra.Provider, m)

	authMiddleware := middleware.NewAuthMiddleware(
		infra.Store,
		refresher,
		identityResolver,
		middleware.NewGate(cfg.ProtectedPrefix),
		cfg.CookieName,
		clk,
		m,
	)

	authHandler := handler.NewHandler(infra.Provider, infra.Store, identities, handler.Options{
		Cookie: session.CookieOptions{
			Name:     cfg.CookieName,
			Secure:   cfg.CookieSecure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		SessionTTL:   cfg.SessionTTL,
		SafetyMargin: cfg.RefreshSafetyMargin,
		Clock:        clk,
	})

	comps := &components{identities: identities}

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	if cfg.LogTraffic {
		router.Use(middleware.TrafficLog())
	}

	// every route goes through the session pipeline; the gate only
	// enforces identity under the protected prefix
	router.Use(middleware.GinAuthenticate(authMiddleware))

	if cfg.RateLimitEnabled {
		comps.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, clk)
		router.Use(comps.limiter.Middleware())
	}

	// ----------------------------
	// Public Routes
	// ----------------------------

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	registerDashboard(router, cfg.StaticDir)

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group(cfg.ProtectedPrefix)

	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	authHandler.RegisterRoutes(router, api)

	return router, comps, nil
}

// registerDashboard serves the exported dashboard when a directory is
// configured, and a small status document otherwise.
func registerDashboard(router *gin.Engine, staticDir string) {
	if staticDir != "" {
		router.Static("/_next", filepath.Join(staticDir, "_next"))
		router.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(staticDir, "index.html"))
		})
		router.GET("/dashboard", func(c *gin.Context) {
			c.File(filepath.Join(staticDir, "dashboard.html"))
		})
		return
	}

	status := func(c *gin.Context) {
		body := gin.H{"authenticated": false}
		if id, ok := middleware.GinIdentity(c); ok && id.Authenticated() {
			body["authenticated"] = true
			body["username"] = id.Identity.Username
		}
		c.JSON(http.StatusOK, body)
	}
	router.GET("/", status)
	router.GET("/dashboard", status)
}
