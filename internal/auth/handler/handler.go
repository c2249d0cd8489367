package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/utils/clock"

	"dashboard-auth/internal/auth/cache"
	"dashboard-auth/internal/auth/provider"
	"dashboard-auth/internal/auth/token"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/middleware"
	"dashboard-auth/internal/session"
)

// Options configures the login flow.
type Options struct {
	Cookie        session.CookieOptions
	SessionTTL    time.Duration
	SafetyMargin  time.Duration
	AfterLoginURL string
	Clock         clock.PassiveClock
}

// Handler serves the browser side of the OAuth flow: login, callback,
// logout and the current-user endpoint.
type Handler struct {
	provider      provider.OAuthProvider
	sessionStore  session.Store
	identities    *cache.IdentityCache
	cookie        session.CookieOptions
	sessionTTL    time.Duration
	margin        time.Duration
	afterLoginURL string
	clock         clock.PassiveClock
}

func NewHandler(
	p provider.OAuthProvider,
	sessionStore session.Store,
	identities *cache.IdentityCache,
	opts Options,
) *Handler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.AfterLoginURL == "" {
		opts.AfterLoginURL = "/"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	return &Handler{
		provider:      p,
		sessionStore:  sessionStore,
		identities:    identities,
		cookie:        opts.Cookie,
		sessionTTL:    opts.SessionTTL,
		margin:        opts.SafetyMargin,
		afterLoginURL: opts.AfterLoginURL,
		clock:         opts.Clock,
	}
}

// RegisterRoutes mounts the login flow on r and the current-user
// endpoint on api, which is expected to sit under the protected prefix.
func (h *Handler) RegisterRoutes(r gin.IRoutes, api gin.IRoutes) {
	r.GET("/oauth/login", h.login)
	r.GET("/oauth/callback", h.callback)
	r.POST("/auth/logout", h.Logout)

	api.GET("/me", h.Me)
}

func (h *Handler) login(c *gin.Context) {
	state, err := h.generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// The user declined consent or the provider failed the flow
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oauth callback returned error", map[string]any{
			"provider": h.provider.Name(),
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, h.afterLoginURL)
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oauth callback missing code and error", nil)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	ctx := c.Request.Context()

	tok, err := h.provider.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		logger.Warn("oauth code exchange failed", map[string]any{
			"provider": h.provider.Name(),
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	// sessions are only worth creating when they can be refreshed later
	lifetime := provider.Lifetime(tok)
	if tok.AccessToken == "" || tok.RefreshToken == "" || lifetime <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	identity, err := h.provider.FetchIdentity(ctx, tok.AccessToken)
	if err != nil || !identity.Complete() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	sessionID, err := session.GenerateID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create session",
		})
		return
	}

	now := h.clock.Now()
	sess := session.Session{
		SessionID:    sessionID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    token.ExpiresAt(now, lifetime, h.margin),
	}

	if err := h.sessionStore.Set(ctx, sess); err != nil {
		logger.Error("failed to persist session", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	// the first dashboard request should not hit the provider again
	h.identities.Set(tok.AccessToken, *identity)

	h.setFlowCookie(c, stateCookieName, "", 0)
	h.setFlowCookie(c, pkceCookieName, "", 0)
	session.SetCookie(c.Writer, sessionID, now.Add(h.sessionTTL), h.cookie)

	logger.Info("login succeeded", map[string]any{
		"provider": h.provider.Name(),
		"user_id":  identity.ID,
		"username": identity.Username,
		"session":  session.ShortID(sessionID),
		"ip":       c.ClientIP(),
	})

	c.Redirect(http.StatusFound, h.afterLoginURL)
}

func (h *Handler) Logout(c *gin.Context) {
	sessionID, ok := session.ReadCookie(c.Request, h.cookie.Name)
	if ok {
		// best-effort: the cookie is cleared either way
		if err := h.sessionStore.Delete(c.Request.Context(), sessionID); err != nil {
			logger.Warn("failed to delete session", map[string]any{
				"session": session.ShortID(sessionID),
				"error":   err.Error(),
			})
		}
		logger.Info("logout", map[string]any{
			"session": session.ShortID(sessionID),
			"ip":      c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.cookie)

	c.Status(http.StatusNoContent)
}

// Me returns the identity the request pipeline resolved for the caller.
func (h *Handler) Me(c *gin.Context) {
	id, ok := middleware.GinIdentity(c)
	if !ok || !id.Authenticated() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       id.Identity,
		"expires_at": id.ExpiresAt.UTC().Format(time.RFC3339),
		"refreshed":  id.Refreshed,
	})
}
