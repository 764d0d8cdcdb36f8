// services/frame-poller/pkg/reader/kafka/kafka.go

// Package kafka reads frames from every partition of a Kafka topic without a
// consumer group, so each reader sees the whole stream.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/kafka/consumer"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
)

// ErrStreamEnded is returned when all partition consumers have stopped.
var ErrStreamEnded = reader.Fatal(errors.New("kafka: partition stream ended"))

// Config: подписка на топик и ожидание в Read.
type Config struct {
	consumer.Config `mapstructure:",squash"`

	// PollTimeout: сколько Read ждёт сообщения; 0 → не ждать.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// SubscribeFunc opens a subscription; consumer.New in production.
type SubscribeFunc func(ctx context.Context) (commonkafka.Subscriber, error)

// Reader implements reader.Reader on top of a fan-out subscription.
type Reader struct {
	cfg       Config
	subscribe SubscribeFunc
	log       *logger.Logger

	mu     sync.Mutex
	sub    commonkafka.Subscriber
	closed bool
}

// New returns an unconnected reader that subscribes via consumer.New.
func New(cfg Config, log *logger.Logger) *Reader {
	log = log.Named("kafka-reader")
	return NewWithSubscriber(func(ctx context.Context) (commonkafka.Subscriber, error) {
		return consumer.New(ctx, cfg.Config, log)
	}, cfg, log)
}

// NewWithSubscriber is New with a custom subscription source.
func NewWithSubscriber(fn SubscribeFunc, cfg Config, log *logger.Logger) *Reader {
	return &Reader{cfg: cfg, subscribe: fn, log: log}
}

func (r *Reader) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return reader.ErrClosed
	}
	r.mu.Unlock()

	sub, err := r.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("kafka: subscribe %q: %w", r.cfg.Topic, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = sub.Close()
		return reader.ErrClosed
	}
	r.sub = sub
	return nil
}

func (r *Reader) current() (commonkafka.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return nil, reader.ErrClosed
	case r.sub == nil:
		return nil, reader.ErrNotConnected
	}
	return r.sub, nil
}

func (r *Reader) Read(ctx context.Context) (reader.Record, bool, error) {
	sub, err := r.current()
	if err != nil {
		return reader.Record{}, false, err
	}

	var timeout <-chan time.Time
	if r.cfg.PollTimeout > 0 {
		t := time.NewTimer(r.cfg.PollTimeout)
		defer t.Stop()
		timeout = t.C
	} else {
		select {
		case m, ok := <-sub.Messages():
			return r.message(m, ok)
		case err := <-sub.Errors():
			return reader.Record{}, false, classify(err)
		default:
			return reader.Record{}, false, nil
		}
	}

	select {
	case m, ok := <-sub.Messages():
		return r.message(m, ok)
	case err := <-sub.Errors():
		return reader.Record{}, false, classify(err)
	case <-timeout:
		return reader.Record{}, false, nil
	case <-ctx.Done():
		return reader.Record{}, false, ctx.Err()
	}
}

func (r *Reader) message(m *commonkafka.Message, ok bool) (reader.Record, bool, error) {
	if !ok {
		return reader.Record{}, false, ErrStreamEnded
	}
	rec, err := record.Unmarshal(m.Value)
	if err != nil {
		return reader.Record{}, false, fmt.Errorf("kafka: %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return rec, true, nil
}

// classify marks errors after which the consumer cannot continue.
func classify(err error) error {
	switch {
	case errors.Is(err, sarama.ErrClosedClient),
		errors.Is(err, sarama.ErrClosedConsumerGroup),
		errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrUnknownTopicOrPartition):
		return reader.Fatal(err)
	}
	return fmt.Errorf("kafka: consume: %w", err)
}

func (r *Reader) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.closed = true
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Close(); err != nil {
		r.log.Warn("kafka reader: close", zap.Error(err))
		return err
	}
	return nil
}
