package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"comanda/internal/config"
)

type Client struct{ *goredis.Client }

// Connect pings once with a short deadline. A dead cache is not fatal for
// the catalog path (it degrades to store reads), but we want the fact in
// the logs at startup, so the error is returned to the caller to log.
func Connect(ctx context.Context, cfg config.Redis) (*Client, error) {
	cl := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Pass,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cl.Ping(pctx).Err(); err != nil {
		return &Client{Client: cl}, err
	}
	return &Client{Client: cl}, nil
}

func (c *Client) Close() {
	if c != nil && c.Client != nil {
		_ = c.Client.Close()
	}
}
