// services/frame-poller/pkg/reader/redisstream/redisstream_test.go
package redisstream

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/common/redis"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
)

func TestConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"no addr", Config{Stream: "frames"}, true},
		{"no stream", Config{Config: redis.Config{Addr: "localhost:6379"}}, true},
		{"ok", Config{Config: redis.Config{Addr: "localhost:6379"}, Stream: "frames"}, false},
		{"url", Config{Config: redis.Config{URL: "redis://localhost:6379/1"}, Stream: "frames"}, false},
	}
	for _, c := range cases {
		cfg := c.cfg
		cfg.ApplyDefaults()
		if err := cfg.Validate(); (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() = %v; wantErr=%v", c.name, err, c.wantErr)
		}
		if cfg.Field != "frame" || cfg.StartID != "$" {
			t.Errorf("%s: defaults not applied: %+v", c.name, cfg)
		}
	}
}

func TestReader_Lifecycle(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	r := NewWithClient(func(context.Context) (goredis.UniversalClient, error) {
		return nil, boom
	}, Config{Config: redis.Config{Addr: "localhost:1"}, Stream: "frames"}, logger.NewNop())

	ctx := context.Background()
	if _, _, err := r.Read(ctx); !errors.Is(err, reader.ErrNotConnected) {
		t.Fatalf("read before connect: %v", err)
	}
	if err := r.Connect(ctx); !errors.Is(err, boom) {
		t.Fatalf("connect: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := r.Read(ctx); !reader.IsFatal(err) {
		t.Fatalf("read after close must be fatal: %v", err)
	}
}

func TestClassify(t *testing.T) {
	if !reader.IsFatal(classify(goredis.ErrClosed)) {
		t.Error("closed client must be fatal")
	}
	if reader.IsFatal(classify(errors.New("i/o timeout"))) {
		t.Error("network error must be transient")
	}
}
