package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"dashboard-auth/internal/config"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/metrics"
)

// pruneInterval is how often expired cache entries and idle rate limit
// buckets are dropped.
const pruneInterval = time.Minute

type App struct {
	httpServer *http.Server
	router     *gin.Engine
	comps      *components
	cleanup    func() error
}

// New connects to the configured store and provider and builds the
// HTTP server.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := NewWithInfra(cfg, infra, metrics.NewRegistry(), clock.RealClock{})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// NewWithInfra builds the app on already connected resources.
func NewWithInfra(
	cfg config.Config,
	infra *Infra,
	reg *prometheus.Registry,
	clk clock.PassiveClock,
) (*App, error) {
	gin.SetMode(gin.ReleaseMode)

	router, comps, err := setupHTTP(cfg, infra, reg, clk)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		httpServer: server,
		router:     router,
		comps:      comps,
		cleanup:    infra.Close,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves HTTP and runs background maintenance until the server stops.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.maintain(ctx)

	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) maintain(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *App) prune() {
	fields := map[string]any{
		"identities": a.comps.identities.Prune(),
	}
	if a.comps.limiter != nil {
		fields["rate_limit_buckets"] = a.comps.limiter.Prune()
	}
	logger.Debug("pruned expired entries", fields)
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
