package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"

	"dashboard-auth/internal/logger"
)

const (
	pingTimeout  = 2 * time.Second
	pingMaxTries = 5
)

type Client struct {
	*goredis.Client
}

// New connects to Redis and waits until it answers a PING, retrying with
// exponential backoff while the server is still starting.
func New(ctx context.Context, addr, password string) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return struct{}{}, client.Ping(pingCtx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(pingMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("redis not ready, retrying", map[string]any{
				"addr":  addr,
				"error": err.Error(),
				"retry": next.String(),
			})
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}

	return &Client{Client: client}, nil
}
