// services/frame-poller/pkg/reader/websocket/websocket.go

// Package websocket reads binary frames pushed over a WebSocket connection.
// A background loop receives messages into a bounded buffer; Read never blocks.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/logger"
	promreg "github.com/YaganovValera/detector-stream/common/prometheus"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
)

var bufferDrops = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "frame_poller", Subsystem: "websocket", Name: "buffer_drops_total",
	Help: "Messages dropped because the receive buffer was full",
})

// RegisterMetrics регистрирует метрики транспорта; повторный вызов безопасен.
func RegisterMetrics() { promreg.MustRegisterMany(bufferDrops) }

// Config задаёт параметры подключения.
type Config struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	BufferSize  int               `mapstructure:"buffer_size"`  // ёмкость буфера принятых сообщений
	ReadTimeout time.Duration     `mapstructure:"read_timeout"` // ReadDeadline, продлевается pong'ами
	DialTimeout time.Duration     `mapstructure:"dial_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("websocket: url is required")
	}
	return nil
}

// Reader implements reader.Reader over a single WebSocket connection.
type Reader struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	frames  chan []byte
	loopErr error
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New returns an unconnected reader.
func New(cfg Config, log *logger.Logger) *Reader {
	cfg.ApplyDefaults()
	return &Reader{cfg: cfg, log: log.Named("ws-reader")}
}

func (r *Reader) Connect(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	hdr := http.Header{}
	for k, v := range r.cfg.Headers {
		hdr.Set(k, v)
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = r.cfg.DialTimeout

	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("websocket: dial %s: %w", r.cfg.URL, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = conn.Close()
		return reader.ErrClosed
	}
	r.conn = conn
	r.frames = make(chan []byte, r.cfg.BufferSize)
	r.stop = make(chan struct{})

	_ = conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
	})

	r.wg.Add(2)
	go r.receive(conn, r.frames)
	go r.ping(conn, r.stop)
	r.log.Info("ws: connected", zap.String("url", r.cfg.URL))
	return nil
}

// receive moves binary messages into frames until the connection fails.
func (r *Reader) receive(conn *websocket.Conn, frames chan<- []byte) {
	defer r.wg.Done()
	defer close(frames)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			if !r.closed {
				r.loopErr = err
			}
			r.mu.Unlock()
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		select {
		case frames <- data:
		default:
			bufferDrops.Inc()
			r.log.Warn("ws: buffer full, dropping message")
		}
	}
}

func (r *Reader) ping(conn *websocket.Conn, stop <-chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.ReadTimeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				r.log.Warn("ws: ping failed", zap.Error(err))
			}
		}
	}
}

func (r *Reader) Read(context.Context) (reader.Record, bool, error) {
	r.mu.Lock()
	frames, closed := r.frames, r.closed
	r.mu.Unlock()
	switch {
	case closed:
		return reader.Record{}, false, reader.ErrClosed
	case frames == nil:
		return reader.Record{}, false, reader.ErrNotConnected
	}

	select {
	case data, ok := <-frames:
		if !ok {
			r.mu.Lock()
			err := r.loopErr
			r.mu.Unlock()
			if err == nil {
				err = errors.New("websocket: connection closed")
			}
			return reader.Record{}, false, reader.Fatal(err)
		}
		rec, err := record.Unmarshal(data)
		if err != nil {
			return reader.Record{}, false, fmt.Errorf("websocket: %w", err)
		}
		return rec, true, nil
	default:
		return reader.Record{}, false, nil
	}
}

func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn, stop := r.conn, r.stop
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(stop)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	r.wg.Wait()
	return err
}
