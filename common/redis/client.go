// common/redis/client.go
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/backoff"
	"github.com/YaganovValera/detector-stream/common/logger"
)

// Options строит *goredis.Options из Config.
func (c Config) Options() (*goredis.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var opts *goredis.Options
	if c.URL != "" {
		o, err := goredis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = o
	} else {
		opts = &goredis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	return opts, nil
}

// NewClient создаёт клиента и дожидается успешного PING с ретраями.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*goredis.Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)

	ping := func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pctx).Err()
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, ping); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	log.Info("redis: connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}
