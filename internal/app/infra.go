package app

import (
	"context"
	"fmt"

	"dashboard-auth/internal/auth/provider"
	"dashboard-auth/internal/auth/provider/discord"
	"dashboard-auth/internal/auth/provider/oidc"
	"dashboard-auth/internal/config"
	"dashboard-auth/internal/db"
	"dashboard-auth/internal/logger"
	"dashboard-auth/internal/redis"
	"dashboard-auth/internal/session"
)

// Infra holds the external resources the app talks to.
type Infra struct {
	Store    session.Store
	Provider provider.OAuthProvider

	closers []func() error
}

func (i *Infra) Close() error {
	var firstErr error
	for _, c := range i.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	store, err := setupStore(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	infra.Store = store

	p, err := setupProvider(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	infra.Provider = p

	return infra, nil
}

func setupStore(ctx context.Context, cfg config.Config, infra *Infra) (session.Store, error) {
	switch cfg.StoreDriver {
	case "redis":
		client, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.closers = append(infra.closers, client.Close)
		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
		return session.NewRedisStore(client.Client, cfg.SessionTTL), nil

	case "postgres", "sqlite":
		d, err := db.Open(ctx, db.Dialect(cfg.StoreDriver), cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		infra.closers = append(infra.closers, d.Close)
		logger.Info("database ready", map[string]any{"driver": cfg.StoreDriver})
		return session.NewSQLStore(d), nil

	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}

func setupProvider(ctx context.Context, cfg config.Config) (provider.OAuthProvider, error) {
	switch cfg.OAuthProvider {
	case "discord":
		return discord.New(discord.Options{
			BaseURL:      cfg.OAuthAPIBaseURL,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       cfg.OAuthScopes,
		})

	case "oidc":
		return oidc.New(ctx, oidc.Options{
			Issuer:       cfg.OAuthIssuer,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       cfg.OAuthScopes,
		})

	default:
		return nil, fmt.Errorf("app: unknown oauth provider %q", cfg.OAuthProvider)
	}
}
