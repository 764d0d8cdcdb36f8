// services/frame-poller/pkg/reader/amqp/amqp.go

// Package amqp reads frames from a RabbitMQ fanout exchange. Each reader binds
// its own exclusive queue, so every reader receives every frame.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/backoff"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
)

// Config: параметры подключения и топологии.
type Config struct {
	URL             string         `mapstructure:"url"`
	Exchange        string         `mapstructure:"exchange"`         // fanout-обменник с кадрами
	DurableExchange bool           `mapstructure:"durable_exchange"` // объявлять обменник durable
	QueuePrefix     string         `mapstructure:"queue_prefix"`     // префикс имени эксклюзивной очереди; пусто → имя от брокера
	Heartbeat       time.Duration  `mapstructure:"heartbeat"`
	Backoff         backoff.Config `mapstructure:"backoff"`
}

func (c *Config) ApplyDefaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("amqp: url is required")
	}
	if c.Exchange == "" {
		return fmt.Errorf("amqp: exchange is required")
	}
	return nil
}

// Channel is the subset of *amqp.Channel the reader polls.
type Channel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

// Session is an open connection with a bound queue.
type Session struct {
	Channel Channel
	Queue   string
	Closed  <-chan *amqp.Error // закрывается или получает ошибку при разрыве
	closer  func() error
}

// DialFunc opens a session; Dial in production.
type DialFunc func(ctx context.Context) (*Session, error)

// Reader implements reader.Reader with basic.get polling.
type Reader struct {
	cfg  Config
	dial DialFunc
	log  *logger.Logger

	mu     sync.Mutex
	sess   *Session
	closed bool
}

// New returns an unconnected reader that dials cfg.URL.
func New(cfg Config, log *logger.Logger) *Reader {
	cfg.ApplyDefaults()
	log = log.Named("amqp-reader")
	return NewWithDialer(func(ctx context.Context) (*Session, error) {
		return Dial(ctx, cfg, log)
	}, cfg, log)
}

// NewWithDialer is New with a custom session source.
func NewWithDialer(dial DialFunc, cfg Config, log *logger.Logger) *Reader {
	return &Reader{cfg: cfg, dial: dial, log: log}
}

// Dial connects with retries, declares the fanout exchange and binds an
// exclusive auto-delete queue to it.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var conn *amqp.Connection
	dial := func(context.Context) error {
		c, err := amqp.DialConfig(cfg.URL, amqp.Config{Heartbeat: cfg.Heartbeat})
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, dial); err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,        // name
		"fanout",            // type
		cfg.DurableExchange, // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", cfg.Exchange, err)
	}

	name := ""
	if cfg.QueuePrefix != "" {
		name = fmt.Sprintf("%s.%d", cfg.QueuePrefix, time.Now().UnixNano())
	}
	q, err := ch.QueueDeclare(
		name,
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: bind queue %s to %s: %w", q.Name, cfg.Exchange, err)
	}

	log.Info("amqp reader bound",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", q.Name),
	)
	return &Session{
		Channel: ch,
		Queue:   q.Name,
		Closed:  conn.NotifyClose(make(chan *amqp.Error, 1)),
		closer:  conn.Close,
	}, nil
}

func (r *Reader) Connect(ctx context.Context) error {
	sess, err := r.dial(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = sess.close()
		return reader.ErrClosed
	}
	r.sess = sess
	return nil
}

func (r *Reader) Read(context.Context) (reader.Record, bool, error) {
	r.mu.Lock()
	sess, closed := r.sess, r.closed
	r.mu.Unlock()
	switch {
	case closed:
		return reader.Record{}, false, reader.ErrClosed
	case sess == nil:
		return reader.Record{}, false, reader.ErrNotConnected
	}

	select {
	case aerr, ok := <-sess.Closed:
		if !ok || aerr == nil {
			return reader.Record{}, false, reader.Fatal(amqp.ErrClosed)
		}
		return reader.Record{}, false, reader.Fatal(aerr)
	default:
	}

	d, ok, err := sess.Channel.Get(sess.Queue, true)
	if err != nil {
		return reader.Record{}, false, classify(err)
	}
	if !ok {
		return reader.Record{}, false, nil
	}
	rec, err := record.Unmarshal(d.Body)
	if err != nil {
		return reader.Record{}, false, fmt.Errorf("amqp: delivery %d: %w", d.DeliveryTag, err)
	}
	return rec, true, nil
}

// classify: closed channel/connection and non-recoverable broker errors are fatal.
func classify(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return reader.Fatal(err)
	}
	var aerr *amqp.Error
	if errors.As(err, &aerr) && !aerr.Recover {
		return reader.Fatal(err)
	}
	return fmt.Errorf("amqp: get: %w", err)
}

func (s *Session) close() error {
	var errs []error
	if s.Channel != nil {
		if err := s.Channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if s.closer != nil {
		if err := s.closer(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reader) Close() error {
	r.mu.Lock()
	sess := r.sess
	r.sess = nil
	r.closed = true
	r.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.close()
}
