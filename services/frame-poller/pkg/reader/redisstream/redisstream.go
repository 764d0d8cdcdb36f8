// services/frame-poller/pkg/reader/redisstream/redisstream.go

// Package redisstream reads frames from a Redis stream with XREAD. Every
// reader keeps its own cursor, so all readers observe the whole stream.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/common/redis"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
)

// Config описывает поток и курсор.
type Config struct {
	redis.Config `mapstructure:",squash"`

	Stream  string        `mapstructure:"stream"`
	Field   string        `mapstructure:"field"`    // поле записи с кадром, по умолчанию "frame"
	Block   time.Duration `mapstructure:"block"`    // XREAD BLOCK; <= 0 → без ожидания
	StartID string        `mapstructure:"start_id"` // "$" (только новые) | "0" (с начала) | конкретный ID
}

func (c *Config) ApplyDefaults() {
	if c.Field == "" {
		c.Field = "frame"
	}
	if c.StartID == "" {
		c.StartID = "$"
	}
}

func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.Stream == "" {
		return fmt.Errorf("redisstream: stream is required")
	}
	return nil
}

// ClientFunc opens a Redis client; redis.NewClient in production.
type ClientFunc func(ctx context.Context) (goredis.UniversalClient, error)

// Reader implements reader.Reader over XREAD.
type Reader struct {
	cfg   Config
	open  ClientFunc
	log   *logger.Logger
	block time.Duration

	mu     sync.Mutex
	client goredis.UniversalClient
	lastID string
	closed bool
}

// New returns an unconnected reader.
func New(cfg Config, log *logger.Logger) *Reader {
	cfg.ApplyDefaults()
	log = log.Named("redis-reader")
	return NewWithClient(func(ctx context.Context) (goredis.UniversalClient, error) {
		c, err := redis.NewClient(ctx, cfg.Config, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, cfg, log)
}

// NewWithClient is New with a custom client source.
func NewWithClient(open ClientFunc, cfg Config, log *logger.Logger) *Reader {
	cfg.ApplyDefaults()
	block := cfg.Block
	if block <= 0 {
		// go-redis опускает BLOCK при отрицательном значении
		block = -1
	}
	return &Reader{cfg: cfg, open: open, log: log, block: block}
}

func (r *Reader) Connect(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	client, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("redisstream: connect: %w", err)
	}

	lastID := r.cfg.StartID
	if lastID == "$" {
		// "$" в каждом XREAD теряет записи между вызовами, фиксируем курсор сразу
		msgs, err := client.XRevRangeN(ctx, r.cfg.Stream, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			_ = client.Close()
			return fmt.Errorf("redisstream: resolve cursor of %q: %w", r.cfg.Stream, err)
		}
		lastID = "0-0"
		if len(msgs) > 0 {
			lastID = msgs[0].ID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = client.Close()
		return reader.ErrClosed
	}
	r.client, r.lastID = client, lastID
	r.log.Info("redis stream reader connected",
		zap.String("stream", r.cfg.Stream),
		zap.String("cursor", lastID),
	)
	return nil
}

func (r *Reader) Read(ctx context.Context) (reader.Record, bool, error) {
	r.mu.Lock()
	client, lastID, closed := r.client, r.lastID, r.closed
	r.mu.Unlock()
	switch {
	case closed:
		return reader.Record{}, false, reader.ErrClosed
	case client == nil:
		return reader.Record{}, false, reader.ErrNotConnected
	}

	streams, err := client.XRead(ctx, &goredis.XReadArgs{
		Streams: []string{r.cfg.Stream, lastID},
		Count:   1,
		Block:   r.block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return reader.Record{}, false, nil
	}
	if err != nil {
		return reader.Record{}, false, classify(err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return reader.Record{}, false, nil
	}

	msg := streams[0].Messages[0]
	r.mu.Lock()
	r.lastID = msg.ID
	r.mu.Unlock()

	raw, ok := msg.Values[r.cfg.Field]
	if !ok {
		return reader.Record{}, false, fmt.Errorf("redisstream: entry %s has no field %q", msg.ID, r.cfg.Field)
	}
	s, ok := raw.(string)
	if !ok {
		return reader.Record{}, false, fmt.Errorf("redisstream: entry %s: field %q is %T", msg.ID, r.cfg.Field, raw)
	}
	rec, err := record.Unmarshal([]byte(s))
	if err != nil {
		return reader.Record{}, false, fmt.Errorf("redisstream: entry %s: %w", msg.ID, err)
	}
	return rec, true, nil
}

func classify(err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return reader.Fatal(err)
	}
	return fmt.Errorf("redisstream: xread: %w", err)
}

func (r *Reader) Close() error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.closed = true
	r.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}
