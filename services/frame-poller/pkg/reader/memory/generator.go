// services/frame-poller/pkg/reader/memory/generator.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

// GeneratorConfig описывает синтетический источник кадров.
type GeneratorConfig struct {
	OriginID int64         `mapstructure:"origin_id"`
	Height   int           `mapstructure:"height"`
	Width    int           `mapstructure:"width"`
	DType    string        `mapstructure:"dtype"`
	Interval time.Duration `mapstructure:"interval"` // пауза между кадрами; 0 → кадр на каждый Read
	Limit    int64         `mapstructure:"limit"`    // 0 → бесконечно
}

func (c *GeneratorConfig) ApplyDefaults() {
	if c.Height <= 0 {
		c.Height = 4
	}
	if c.Width <= 0 {
		c.Width = 4
	}
	if c.DType == "" {
		c.DType = "uint8"
	}
}

func (c GeneratorConfig) Validate() error {
	if _, err := tensor.ParseDType(c.DType); err != nil {
		return fmt.Errorf("memory: generator: %w", err)
	}
	if c.Limit < 0 {
		return fmt.Errorf("memory: generator: limit must be >= 0")
	}
	return nil
}

// Generator emits frames with consecutive indices; each frame is filled with
// its index modulo 256. Until Interval elapses since the previous frame, Read
// returns the empty signal.
type Generator struct {
	cfg   GeneratorConfig
	dtype tensor.DType

	mu        sync.Mutex
	next      int64
	last      time.Time
	connected bool
	closed    bool
}

// NewGenerator validates cfg and returns an unconnected generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dt, _ := tensor.ParseDType(cfg.DType)
	return &Generator{cfg: cfg, dtype: dt}, nil
}

func (g *Generator) Connect(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return reader.ErrClosed
	}
	g.connected = true
	return nil
}

func (g *Generator) Read(context.Context) (reader.Record, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return reader.Record{}, false, reader.ErrClosed
	case !g.connected:
		return reader.Record{}, false, reader.ErrNotConnected
	case g.cfg.Limit > 0 && g.next >= g.cfg.Limit:
		return reader.Record{}, false, ErrExhausted
	}
	now := time.Now()
	if g.cfg.Interval > 0 && !g.last.IsZero() && now.Sub(g.last) < g.cfg.Interval {
		return reader.Record{}, false, nil
	}
	g.last = now

	payload, err := tensor.Zeros(g.dtype, g.cfg.Height, g.cfg.Width)
	if err != nil {
		return reader.Record{}, false, err
	}
	fill := byte(g.next % 256)
	sz := g.dtype.Size()
	for i := 0; i < len(payload.Data); i += sz {
		payload.Data[i] = fill
	}
	rec := reader.Record{OriginID: g.cfg.OriginID, Index: g.next, Payload: payload}
	g.next++
	return rec, true, nil
}

func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.connected = false
	return nil
}
